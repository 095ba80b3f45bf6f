package pvdata

import (
	"fmt"
	"time"
)

// Alarm severity ordinals.
const (
	SeverityNoAlarm int32 = 0
	SeverityMinor   int32 = 1
	SeverityMajor   int32 = 2
	SeverityInvalid int32 = 3
)

// Alarm carries the alarm state attached to an NT value.
// The zero value means "no alarm".
type Alarm struct {
	Severity int32
	Status   int32
	Message  string
}

// Validate checks the severity ordinal range.
func (a Alarm) Validate() error {
	if a.Severity < SeverityNoAlarm || a.Severity > SeverityInvalid {
		return fmt.Errorf("%w: alarm severity %d out of range [0,3]",
			ErrInvalidValue, a.Severity)
	}
	return nil
}

// TimeStamp carries the event time attached to an NT value.
type TimeStamp struct {
	SecondsPastEpoch int64
	Nanoseconds      int32
	UserTag          int32
}

// Now returns a TimeStamp for the current time.
func Now() TimeStamp {
	t := time.Now()
	return TimeStamp{
		SecondsPastEpoch: t.Unix(),
		Nanoseconds:      int32(t.Nanosecond()),
	}
}

// Display holds presentation metadata for a scalar PV.
type Display struct {
	LimitLow    float64
	LimitHigh   float64
	Description string
	Units       string
	Precision   int32
}

// Control holds write-constraint metadata for a scalar PV.
type Control struct {
	LimitLow  float64
	LimitHigh float64
	MinStep   float64
}

// ValueAlarm holds per-severity threshold metadata for a scalar PV.
type ValueAlarm struct {
	Active              bool
	LowAlarmLimit       float64
	LowWarningLimit     float64
	HighWarningLimit    float64
	HighAlarmLimit      float64
	LowAlarmSeverity    int32
	LowWarningSeverity  int32
	HighWarningSeverity int32
	HighAlarmSeverity   int32
	Hysteresis          uint8
}

// Metadata configures the optional sections of an NT structure.
// Zero TimeStamp fields default to the build time. Nil section pointers
// omit the section entirely.
type Metadata struct {
	Alarm      Alarm
	TimeStamp  TimeStamp
	Display    *Display
	Control    *Control
	ValueAlarm *ValueAlarm
}

func alarmStruct(a Alarm) Value {
	return NewStruct(
		Field{"severity", NewInt32(a.Severity)},
		Field{"status", NewInt32(a.Status)},
		Field{"message", NewString(a.Message)},
	)
}

func timeStampStruct(ts TimeStamp) Value {
	if ts.SecondsPastEpoch == 0 && ts.Nanoseconds == 0 {
		now := Now()
		now.UserTag = ts.UserTag
		ts = now
	}
	// Seconds stored as double: exact for any realistic epoch value.
	return NewStruct(
		Field{"secondsPastEpoch", NewDouble(float64(ts.SecondsPastEpoch))},
		Field{"nanoseconds", NewInt32(ts.Nanoseconds)},
		Field{"userTag", NewInt32(ts.UserTag)},
	)
}

func displayStruct(d Display) Value {
	return NewStruct(
		Field{"limitLow", NewDouble(d.LimitLow)},
		Field{"limitHigh", NewDouble(d.LimitHigh)},
		Field{"description", NewString(d.Description)},
		Field{"units", NewString(d.Units)},
		Field{"precision", NewInt32(d.Precision)},
	)
}

func controlStruct(c Control) Value {
	return NewStruct(
		Field{"limitLow", NewDouble(c.LimitLow)},
		Field{"limitHigh", NewDouble(c.LimitHigh)},
		Field{"minStep", NewDouble(c.MinStep)},
	)
}

func valueAlarmStruct(va ValueAlarm) Value {
	active := int32(0)
	if va.Active {
		active = 1
	}
	return NewStruct(
		Field{"active", NewInt32(active)},
		Field{"lowAlarmLimit", NewDouble(va.LowAlarmLimit)},
		Field{"lowWarningLimit", NewDouble(va.LowWarningLimit)},
		Field{"highWarningLimit", NewDouble(va.HighWarningLimit)},
		Field{"highAlarmLimit", NewDouble(va.HighAlarmLimit)},
		Field{"lowAlarmSeverity", NewInt32(va.LowAlarmSeverity)},
		Field{"lowWarningSeverity", NewInt32(va.LowWarningSeverity)},
		Field{"highWarningSeverity", NewInt32(va.HighWarningSeverity)},
		Field{"highAlarmSeverity", NewInt32(va.HighAlarmSeverity)},
		Field{"hysteresis", NewInt32(int32(va.Hysteresis))},
	)
}

// NTScalar builds the conventional scalar structure: a primary value plus
// alarm and timeStamp, with optional display/control/valueAlarm sections.
func NTScalar(value Value, meta Metadata) (Value, error) {
	if !value.IsValid() {
		return Value{}, ErrInvalidValue
	}
	if err := meta.Alarm.Validate(); err != nil {
		return Value{}, err
	}
	fields := []Field{
		{"value", value},
		{"alarm", alarmStruct(meta.Alarm)},
		{"timeStamp", timeStampStruct(meta.TimeStamp)},
	}
	if meta.Display != nil {
		fields = append(fields, Field{"display", displayStruct(*meta.Display)})
	}
	if meta.Control != nil {
		fields = append(fields, Field{"control", controlStruct(*meta.Control)})
	}
	if meta.ValueAlarm != nil {
		fields = append(fields, Field{"valueAlarm", valueAlarmStruct(*meta.ValueAlarm)})
	}
	return NewStruct(fields...), nil
}

// NTEnum builds the conventional enum structure: an enum value plus alarm
// and timeStamp. The index must address an existing choice.
func NTEnum(index int16, choices []string, meta Metadata) (Value, error) {
	if index < 0 || int(index) >= len(choices) {
		return Value{}, fmt.Errorf("%w: enum index %d out of range [0,%d)",
			ErrInvalidValue, index, len(choices))
	}
	if err := meta.Alarm.Validate(); err != nil {
		return Value{}, err
	}
	return NewStruct(
		Field{"value", NewEnum(index, choices)},
		Field{"alarm", alarmStruct(meta.Alarm)},
		Field{"timeStamp", timeStampStruct(meta.TimeStamp)},
	), nil
}
