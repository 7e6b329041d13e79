package models

import (
	"encoding/json"
	"fmt"
)

// ID идентифицирует запись или сообщение.
// Хранилище json-server выдаёт числовые id, старые клиенты писали Date.now(),
// новые записи получают строки, поэтому при чтении принимаем оба варианта.
type ID string

func (id ID) String() string { return string(id) }

func (id ID) IsZero() bool { return id == "" }

func (id *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("некорректный идентификатор %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}
