package api

import "regexp"

// digitsRe matches digit-only numbers (caller IDs, DIDs, PINs).
var digitsRe = regexp.MustCompile(`^\d{1,20}$`)

// didRe matches public numbers: optional leading +, then digits.
var didRe = regexp.MustCompile(`^\+?\d{3,20}$`)

// dtmfRe matches a single IVR menu digit.
var dtmfRe = regexp.MustCompile(`^[0-9*#]$`)

// pinRe matches voicemail PINs: 4-10 digits.
var pinRe = regexp.MustCompile(`^\d{4,10}$`)

// emailRe is a basic email format regex. Not exhaustive; validates structure only.
var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
