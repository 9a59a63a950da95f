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

// Package env reads typed environment variables with defaults. It backs
// the flag defaults in the options package, so an unset or unparseable
// variable silently falls back rather than failing startup.
package env

import (
	"os"
	"strconv"
	"time"
)

// WithDefault returns the parsed value of the environment variable, or
// def when the variable is unset or parse fails.
func WithDefault[T any](key string, def T, parse func(string) (T, error)) T {
	val, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	parsed, err := parse(val)
	if err != nil {
		return def
	}
	return parsed
}

func WithDefaultString(key string, def string) string {
	return WithDefault(key, def, func(s string) (string, error) { return s, nil })
}

func WithDefaultInt(key string, def int) int {
	return WithDefault(key, def, strconv.Atoi)
}

func WithDefaultFloat64(key string, def float64) float64 {
	return WithDefault(key, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func WithDefaultDuration(key string, def time.Duration) time.Duration {
	return WithDefault(key, def, time.ParseDuration)
}
