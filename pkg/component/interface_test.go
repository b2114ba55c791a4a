package component_test

import (
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyauth/microauth/pkg/component"
	"github.com/tinyauth/microauth/pkg/component/mysql"
	"github.com/tinyauth/microauth/pkg/component/postgres"
	"github.com/tinyauth/microauth/pkg/component/redis"
)

func TestConfigOptionsContract(t *testing.T) {
	tests := []struct {
		name   string
		option component.ConfigOptions
		prefix string
		flag   string
	}{
		{"mysql", mysql.NewOptions(), "store.mysql.", "store.mysql.host"},
		{"postgres", postgres.NewOptions(), "store.postgres.", "store.postgres.host"},
		{"redis", redis.NewOptions(), "redis.", "redis.host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := pflag.NewFlagSet(tt.name, pflag.ContinueOnError)
			tt.option.AddFlags(fs, tt.prefix)

			require.NotNil(t, fs.Lookup(tt.flag), "expected flag %s", tt.flag)
			fs.VisitAll(func(f *pflag.Flag) {
				assert.True(t, strings.HasPrefix(f.Name, tt.prefix),
					"flag %s missing prefix %s", f.Name, tt.prefix)
			})
		})
	}
}

func TestStringRedactsPassword(t *testing.T) {
	m := mysql.NewOptions()
	m.Password = "hunter2"
	assert.NotContains(t, m.String(), "hunter2")

	p := postgres.NewOptions()
	p.Password = "hunter2"
	assert.NotContains(t, p.String(), "hunter2")

	r := redis.NewOptions()
	r.Password = "hunter2"
	assert.NotContains(t, r.String(), "hunter2")
}
