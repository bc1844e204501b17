package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/climate-api/internal/models"
)

// ErrInvalidDate is returned when a date parameter is not a YYYY-MM-DD calendar date.
var ErrInvalidDate = errors.New("invalid date")

// ErrInvalidRange is returned when an end date precedes the start date.
var ErrInvalidRange = errors.New("invalid date range")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// dateRangeRequest mirrors the path parameters of the summary endpoints.
type dateRangeRequest struct {
	Start string `validate:"required,datetime=2006-01-02"`
	End   string `validate:"omitempty,datetime=2006-01-02"`
}

// DateRange is a validated, inclusive date range. End is nil when open-ended.
type DateRange struct {
	Start time.Time
	End   *time.Time
}

// ParseDate trims s and parses it as a YYYY-MM-DD calendar date in UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if err := getValidator().Var(s, "required,datetime=2006-01-02"); err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a YYYY-MM-DD date", ErrInvalidDate, s)
	}
	return time.Parse(models.DateLayout, s)
}

// ParseRange validates start (required) and end (optional) and rejects end < start.
func ParseRange(start string, end *string) (DateRange, error) {
	req := dateRangeRequest{Start: strings.TrimSpace(start)}
	if end != nil {
		req.End = strings.TrimSpace(*end)
		if req.End == "" {
			return DateRange{}, fmt.Errorf("%w: end date is empty", ErrInvalidDate)
		}
	}
	if err := getValidator().Struct(req); err != nil {
		return DateRange{}, translate(err, req)
	}

	var r DateRange
	var err error
	if r.Start, err = time.Parse(models.DateLayout, req.Start); err != nil {
		return DateRange{}, fmt.Errorf("%w: start %q", ErrInvalidDate, req.Start)
	}
	if end != nil {
		e, err := time.Parse(models.DateLayout, req.End)
		if err != nil {
			return DateRange{}, fmt.Errorf("%w: end %q", ErrInvalidDate, req.End)
		}
		if e.Before(r.Start) {
			return DateRange{}, fmt.Errorf("%w: end %s is before start %s", ErrInvalidRange, req.End, req.Start)
		}
		r.End = &e
	}
	return r, nil
}

// translate turns validator field errors into a single ErrInvalidDate naming the first bad field.
func translate(err error, req dateRangeRequest) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	fe := fieldErrs[0]
	field := strings.ToLower(fe.Field())
	if fe.Tag() == "required" {
		return fmt.Errorf("%w: %s date is required", ErrInvalidDate, field)
	}
	value := req.Start
	if fe.Field() == "End" {
		value = req.End
	}
	return fmt.Errorf("%w: %s %q is not a YYYY-MM-DD date", ErrInvalidDate, field, value)
}
