package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexFloat читает число, записанное как JSON-число или как строка.
// Формы старого клиента отправляли количество и цену строками ("100"),
// и json-server хранит их в таком виде. Пустая строка и null дают 0.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*f = 0
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("некорректное число %q: %w", s, err)
		}
		*f = FlexFloat(v)
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("некорректное число %s: %w", data, err)
	}
	*f = FlexFloat(v)
	return nil
}
