/*
 * MIT License
 *
 * Copyright (c) 2021 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package lsnpconfig

import (
	"fmt"
	"reflect"
	"strings"

	libval "github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load layers sources over Default() the way the teacher's config package
// layers viper over a struct: defaults first, then an optional YAML file,
// then environment variables prefixed LSNP_ (e.g. LSNP_PORT).
//
// file may be empty, in which case only defaults + environment apply.
func Load(file string) (*Options, error) {
	opt := Default()

	v := viper.New()
	v.SetEnvPrefix("lsnp")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only consults the environment for keys viper already
	// knows, so every Options key is bound explicitly.
	t := reflect.TypeOf(*opt)
	for i := 0; i < t.NumField(); i++ {
		key := strings.Split(t.Field(i).Tag.Get("mapstructure"), ",")[0]
		_ = v.BindEnv(key)
	}

	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("lsnpconfig: reading %s: %w", file, err)
		}
	}

	if err := v.Unmarshal(opt, func(c *mapstructure.DecoderConfig) {
		c.TagName = "mapstructure"
	}); err != nil {
		return nil, fmt.Errorf("lsnpconfig: decoding: %w", err)
	}

	return opt, nil
}

// Validate enforces the required fields (username, mode, ip) via
// go-playground/validator, matching the teacher's validation seam in
// logger/config.
func Validate(o *Options) error {
	return libval.New().Struct(o)
}

// MarshalYAML renders o as YAML, for writing a starter config file.
func MarshalYAML(o *Options) ([]byte, error) {
	return yaml.Marshal(o)
}
