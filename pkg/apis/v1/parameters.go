/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package v1

import (
	"encoding/json"
	"fmt"
	"math"
)

// ParameterValue is a tagged scalar: exactly one of the typed fields is
// meaningful, selected by Type. It marshals to the native JSON scalar and
// re-infers the tag on unmarshal; schema validation coerces INTEGER/FLOAT
// afterwards so that a serialize/deserialize round trip is stable.
type ParameterValue struct {
	Type  ParameterType `json:"-"`
	Int   int64         `json:"-"`
	Float float64       `json:"-"`
	Str   string        `json:"-"`
	Bool  bool          `json:"-"`
}

func IntValue(v int64) ParameterValue {
	return ParameterValue{Type: ParameterTypeInteger, Int: v}
}

func FloatValue(v float64) ParameterValue {
	return ParameterValue{Type: ParameterTypeFloat, Float: v}
}

func StringValue(v string) ParameterValue {
	return ParameterValue{Type: ParameterTypeString, Str: v}
}

func BoolValue(v bool) ParameterValue {
	return ParameterValue{Type: ParameterTypeBoolean, Bool: v}
}

// AsFloat returns the numeric value of an INTEGER or FLOAT parameter.
func (p ParameterValue) AsFloat() (float64, bool) {
	switch p.Type {
	case ParameterTypeInteger:
		return float64(p.Int), true
	case ParameterTypeFloat:
		return p.Float, true
	default:
		return 0, false
	}
}

// Coerce converts the value to the given type when the conversion is exact.
func (p ParameterValue) Coerce(t ParameterType) (ParameterValue, bool) {
	if p.Type == t {
		return p, true
	}
	switch t {
	case ParameterTypeInteger:
		if p.Type == ParameterTypeFloat && p.Float == math.Trunc(p.Float) {
			return IntValue(int64(p.Float)), true
		}
	case ParameterTypeFloat:
		if p.Type == ParameterTypeInteger {
			return FloatValue(float64(p.Int)), true
		}
	}
	return p, false
}

func (p ParameterValue) String() string {
	switch p.Type {
	case ParameterTypeInteger:
		return fmt.Sprintf("%d", p.Int)
	case ParameterTypeFloat:
		return fmt.Sprintf("%g", p.Float)
	case ParameterTypeBoolean:
		return fmt.Sprintf("%t", p.Bool)
	default:
		return p.Str
	}
}

func (p ParameterValue) MarshalJSON() ([]byte, error) {
	switch p.Type {
	case ParameterTypeInteger:
		return json.Marshal(p.Int)
	case ParameterTypeFloat:
		return json.Marshal(p.Float)
	case ParameterTypeBoolean:
		return json.Marshal(p.Bool)
	case ParameterTypeString:
		return json.Marshal(p.Str)
	default:
		return nil, fmt.Errorf("parameter value has unknown type %q", p.Type)
	}
}

func (p *ParameterValue) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case bool:
		*p = BoolValue(v)
	case string:
		*p = StringValue(v)
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			*p = IntValue(int64(v))
		} else {
			*p = FloatValue(v)
		}
	default:
		return fmt.Errorf("parameter value must be a JSON scalar, got %T", raw)
	}
	return nil
}
