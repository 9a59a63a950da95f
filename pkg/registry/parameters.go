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

package registry

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/samber/lo"
	"go.uber.org/multierr"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
)

// ErrParameterInvalid wraps every parameter validation failure.
var ErrParameterInvalid = errors.New("parameter invalid")

// ValidateParameters checks the supplied parameters against the template's
// schema: required presence, type (with exact numeric coercion), bounds,
// allowed values and regex patterns. It returns the validated map with
// defaults applied and values coerced to their declared types, so a
// serialize/deserialize round trip followed by re-validation is stable.
func ValidateParameters(t *v1.Template, params map[string]v1.ParameterValue) (map[string]v1.ParameterValue, error) {
	var errs error
	out := make(map[string]v1.ParameterValue, len(params))

	for name := range params {
		if _, ok := t.ParameterSchema.Parameters[name]; !ok {
			errs = multierr.Append(errs, fmt.Errorf("parameter %q is not in the schema", name))
		}
	}
	for name, spec := range t.ParameterSchema.Parameters {
		value, supplied := params[name]
		if !supplied {
			if spec.Required {
				errs = multierr.Append(errs, fmt.Errorf("required parameter %q is missing", name))
				continue
			}
			if spec.Default != nil {
				out[name] = *spec.Default
			}
			continue
		}
		coerced, ok := value.Coerce(spec.Type)
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("parameter %q must be %s, got %s", name, spec.Type, value.Type))
			continue
		}
		if err := checkConstraints(name, spec, coerced); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		out[name] = coerced
	}
	if errs != nil {
		return nil, fmt.Errorf("%w, %s", ErrParameterInvalid, errs)
	}
	return out, nil
}

func checkConstraints(name string, spec v1.ParameterSpec, value v1.ParameterValue) error {
	if num, ok := value.AsFloat(); ok {
		if spec.Min != nil && num < *spec.Min {
			return fmt.Errorf("parameter %q value %g is below minimum %g", name, num, *spec.Min)
		}
		if spec.Max != nil && num > *spec.Max {
			return fmt.Errorf("parameter %q value %g exceeds maximum %g", name, num, *spec.Max)
		}
	}
	if value.Type == v1.ParameterTypeString {
		if len(spec.AllowedValues) > 0 && !lo.Contains(spec.AllowedValues, value.Str) {
			return fmt.Errorf("parameter %q value %q is not one of %v", name, value.Str, spec.AllowedValues)
		}
		if spec.Pattern != "" {
			re, err := regexp.Compile(spec.Pattern)
			if err != nil {
				return fmt.Errorf("parameter %q has an invalid pattern %q, %w", name, spec.Pattern, err)
			}
			if !re.MatchString(value.Str) {
				return fmt.Errorf("parameter %q value %q does not match pattern %q", name, value.Str, spec.Pattern)
			}
		}
	}
	return nil
}
