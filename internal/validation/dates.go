package validation

import "doclife/internal/domain"

// DateOrder requires start <= end when both are set; the error lands on endField.
func DateOrder(endField string, start, end *domain.Date) Errors {
	errs := Errors{}
	if domain.Set(start) && domain.Set(end) && end.Before(*start) {
		errs.Add(endField, MsgBeforeStart)
	}
	return errs
}

// NotInFuture rejects dates after today.
func NotInFuture(field string, d *domain.Date, today domain.Date) Errors {
	errs := Errors{}
	if domain.Set(d) && d.After(today) {
		errs.Add(field, MsgFuture)
	}
	return errs
}

// NotBefore requires d >= floor when both are set.
func NotBefore(field string, d *domain.Date, floor *domain.Date, msg string) Errors {
	errs := Errors{}
	if domain.Set(d) && domain.Set(floor) && d.Before(*floor) {
		errs.Add(field, msg)
	}
	return errs
}

// Latest returns the later of the set dates, or nil.
func Latest(dates ...*domain.Date) *domain.Date {
	var out *domain.Date
	for _, d := range dates {
		if !domain.Set(d) {
			continue
		}
		if out == nil || d.After(*out) {
			out = d
		}
	}
	return out
}
