package store

import "errors"

// ErrRefTaken is returned when an external reference already belongs to another quote.
var ErrRefTaken = errors.New("store: external reference already linked")
