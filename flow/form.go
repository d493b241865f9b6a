package flow

import (
	"strings"
	"sync"
	"time"
)

// Form holds the current values of a multi-field form together with the
// errors shown next to each field and a general banner message.
type Form struct {
	mu     sync.RWMutex
	schema Schema
	values Record
	errs   map[string]string
	banner string
}

func NewForm(schema Schema, defaults Record) *Form {
	f := &Form{schema: schema, values: Record{}, errs: map[string]string{}}
	for k, v := range defaults {
		f.values[k] = v
	}
	return f
}

// Set stores a value and clears the error shown for that field.
func (f *Form) Set(field string, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[field] = v
	delete(f.errs, field)
}

func (f *Form) Get(field string) any {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.values[field]
}

// String returns the trimmed string value of field, or "".
func (f *Form) String(field string) string {
	s, _ := f.Get(field).(string)
	return strings.TrimSpace(s)
}

func (f *Form) Time(field string) time.Time {
	t, _ := f.Get(field).(time.Time)
	return t
}

func (f *Form) Values() Record {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(Record, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

// Validate checks the named fields (all fields when none are named). The
// errors of those fields are replaced by the outcome: the first failed
// message of each field is kept for display.
func (f *Form) Validate(fields ...string) ValidationError {
	f.mu.Lock()
	defer f.mu.Unlock()
	errs := f.schema.Validate(f.values, fields...)
	if len(fields) == 0 {
		f.errs = map[string]string{}
	}
	for _, name := range fields {
		delete(f.errs, name)
	}
	for _, e := range errs {
		if _, seen := f.errs[e.Field]; !seen {
			f.errs[e.Field] = e.Message
		}
	}
	return errs
}

// SetError attaches msg to field, or to the banner when field is empty.
func (f *Form) SetError(field, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if field == "" {
		f.banner = msg
		return
	}
	f.errs[field] = msg
}

func (f *Form) Error(field string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.errs[field]
}

func (f *Form) Errors() map[string]string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]string, len(f.errs))
	for k, v := range f.errs {
		out[k] = v
	}
	return out
}

func (f *Form) Banner() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.banner
}

func (f *Form) ClearErrors() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = map[string]string{}
	f.banner = ""
}

// Reset discards every value and error except the values of keep.
func (f *Form) Reset(keep ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := Record{}
	for _, k := range keep {
		if v, ok := f.values[k]; ok {
			kept[k] = v
		}
	}
	f.values = kept
	f.errs = map[string]string{}
	f.banner = ""
}
