package faq

import "fmt"

// StepError records which pipeline step failed. The wrapped error keeps
// the taxonomy sentinel so callers can still classify with errors.Is.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("faq %s step: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepError(step string, err error) error {
	if err == nil {
		return nil
	}

	return &StepError{Step: step, Err: err}
}
