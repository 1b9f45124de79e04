package main

import "fmt"

const exitCodeUsage = 2

type exitError struct {
	code   int
	err    error
	silent bool
	// usage errors are printed plainly whatever the command.
	usage bool
}

func usageError(err error) error {
	return &exitError{code: exitCodeUsage, err: err, usage: true}
}

func (e *exitError) Error() string {
	if e == nil {
		return ""
	}
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit %d", e.code)
}

func (e *exitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}
