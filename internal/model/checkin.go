package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const (
	MaxCheckInNoteLength = 500
	MaxBackfillDays      = 3
)

type CheckIn struct {
	ID               string     `db:"id" json:"id"`
	UserID           string     `db:"user_id" json:"userId"`
	CheckInDate      time.Time  `db:"checkin_date" json:"date"`
	Mood             int        `db:"mood" json:"mood"`
	EnergyLevel      int        `db:"energy_level" json:"energyLevel"`
	UrgeLevel        int        `db:"urge_level" json:"urgeLevel"`
	CravingLevel     int        `db:"craving_level" json:"cravingLevel"`
	Triggers         StringList `db:"triggers" json:"triggers"`
	CopingStrategies StringList `db:"coping_strategies" json:"copingStrategies"`
	Relapse          bool       `db:"relapse" json:"relapse"`
	Note             string     `db:"note" json:"note"`
	IsBackfill       bool       `db:"is_backfill" json:"isBackfill"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
}

// StringList stores a string slice as a JSON array column.
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *StringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = StringList{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*s = out
	return nil
}
