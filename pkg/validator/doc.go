// Package validator builds small declarative validation rules.
//
// A Rule pairs a Check func with the ValidationError reported when the check
// fails. Apply evaluates rules and aggregates failures into ValidationErrors,
// which satisfies the error interface:
//
//	err := validator.Apply(
//	    validator.ValidEmail("payer_email", email),
//	    validator.MaxLen("payer_email", email, 254),
//	)
//	if verrs := validator.ExtractValidationErrors(err); verrs != nil {
//	    // field-level messages
//	}
package validator
