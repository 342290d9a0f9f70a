package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore map[string][]byte

func (m mapStore) Set(key string, value []byte) error { m[key] = value; return nil }
func (m mapStore) Get(key string) ([]byte, error)     { return m[key], nil }
func (m mapStore) Delete(key string) error            { delete(m, key); return nil }

func TestResolver(t *testing.T) {
	t.Setenv("DYNTABLES_TEST_PASSWORD", "s3cret")
	r := Resolver{"env": NewEnvStore(), "vault": mapStore{"prod": []byte("p")}}

	tests := []struct {
		ref  string
		want string
		err  error
	}{
		{ref: "", want: ""},
		{ref: "env:DYNTABLES_TEST_PASSWORD", want: "s3cret"},
		{ref: "DYNTABLES_TEST_PASSWORD", want: "s3cret"},
		{ref: "vault:prod", want: "p"},
		{ref: "vault:staging", err: ErrMissingSecret},
		{ref: "env:DYNTABLES_TEST_UNSET", err: ErrMissingSecret},
		{ref: "file:/etc/passwd", err: ErrUnknownScheme},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := r.Resolve(tt.ref)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnvStore(t *testing.T) {
	t.Setenv("DYNTABLES_TEST_ENVSTORE", "")
	s := NewEnvStore()

	v, err := s.Get("DYNTABLES_TEST_ENVSTORE")
	require.NoError(t, err)
	assert.NotNil(t, v, "a set but empty variable exists")

	require.NoError(t, s.Set("DYNTABLES_TEST_ENVSTORE", []byte("x")))
	v, _ = s.Get("DYNTABLES_TEST_ENVSTORE")
	assert.Equal(t, "x", string(v))

	require.NoError(t, s.Delete("DYNTABLES_TEST_ENVSTORE"))
	v, _ = s.Get("DYNTABLES_TEST_ENVSTORE")
	assert.Nil(t, v)
}
