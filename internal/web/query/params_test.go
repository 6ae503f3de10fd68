package query

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected []string
	}{
		{name: "absent", url: "/v1/relationships", expected: nil},
		{name: "single", url: "/v1/relationships?name=OwnedBy", expected: []string{"OwnedBy"}},
		{name: "comma separated", url: "/v1/relationships?name=OwnedBy,MemberOf", expected: []string{"OwnedBy", "MemberOf"}},
		{name: "repeated", url: "/v1/relationships?name=OwnedBy&name=MemberOf", expected: []string{"OwnedBy", "MemberOf"}},
		{name: "trims and dedupes", url: "/v1/relationships?name=%20OwnedBy%20,,OwnedBy&name=MemberOf", expected: []string{"OwnedBy", "MemberOf"}},
		{name: "empty value", url: "/v1/relationships?name=", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			assert.Equal(t, tt.expected, List(req, "name"))
		})
	}
}

func TestSet(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?name=a,b&name=a", nil)
	assert.Equal(t, map[string]bool{"a": true, "b": true}, Set(req, "name"))
}

func TestInt(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    int
		wantErr bool
	}{
		{name: "absent uses default", url: "/", want: 1},
		{name: "zero", url: "/?depth=0", want: 0},
		{name: "positive", url: "/?depth=3", want: 3},
		{name: "below minimum", url: "/?depth=-1", wantErr: true},
		{name: "not a number", url: "/?depth=deep", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			got, err := Int(req, "depth", 1, 0)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "depth must be an integer >= 0")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
