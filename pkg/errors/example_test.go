package errors_test

import (
	"fmt"

	"github.com/layerforge/layerforge/pkg/errors"
)

func ExampleNew() {
	err := errors.New(errors.ErrCodeCapacityExceeded,
		"combination %q admits at most %d distinct items, requested %d", "body-eyes", 6, 10)
	fmt.Println(err)
	// Output:
	// CAPACITY_EXCEEDED: combination "body-eyes" admits at most 6 distinct items, requested 10
}

func ExampleWrap() {
	cause := errors.New(errors.ErrCodeSolverExhausted, "no assignment satisfies the active rules")
	err := errors.Wrap(errors.ErrCodeSolverExhausted, cause, "item 5 of 10")

	fmt.Println(errors.Is(err, errors.ErrCodeSolverExhausted))
	fmt.Println(errors.GetCode(err))
	fmt.Println(errors.UserMessage(err))
	// Output:
	// true
	// SOLVER_EXHAUSTED
	// item 5 of 10
}

func ExampleIsConfig() {
	fmt.Println(errors.IsConfig(errors.New(errors.ErrCodeInvalidRule, "ruler trait does not exist")))
	fmt.Println(errors.IsConfig(errors.New(errors.ErrCodeCancelled, "session cancelled")))
	// Output:
	// true
	// false
}
