package models

import (
	"database/sql/driver"
	"errors"
	"strings"
)

// Colours is a custom DB extension type that stores a string slice as a
// comma separated value in the database.
// Example input: []string{"#020304", "#6581be"}
// Example DB value: #020304,#6581be
type Colours []string

func (c Colours) Value() (driver.Value, error) {
	return strings.Join(c, ","), nil
}

func (c *Colours) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*c = nil
	case string:
		if v == "" {
			*c = nil
			return nil
		}
		*c = Colours(strings.Split(v, ","))
	default:
		return errors.New("incompatible type for Colours")
	}
	return nil
}
