package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func request(query string, header http.Header) *http.Request {
	r := httptest.NewRequest(http.MethodPut, "/webhdfs/v1/a.log?op=append"+query, nil)
	for k, v := range header {
		r.Header[k] = v
	}
	return r
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name    string
		auth    *Authenticator
		query   string
		header  http.Header
		wantErr bool
	}{
		{"none passes", New("none", "x-api-key", "secret", nil), "", nil, false},
		{"nil passes", nil, "", nil, false},
		{"pseudo known user", New("pseudo", "", "", []string{"hoop"}), "&user.name=hoop", nil, false},
		{"pseudo unknown user", New("pseudo", "", "", []string{"hoop"}), "&user.name=mallory", nil, true},
		{"pseudo missing user", New("pseudo", "", "", []string{"hoop"}), "", nil, true},
		{"apikey valid", New("apikey", "x-api-key", "secret", nil), "", http.Header{"X-Api-Key": {"secret"}}, false},
		{"apikey wrong", New("apikey", "x-api-key", "secret", nil), "", http.Header{"X-Api-Key": {"nope"}}, true},
		{"apikey missing", New("apikey", "x-api-key", "secret", nil), "", nil, true},
		{"apikey unset passes", New("apikey", "x-api-key", "", nil), "", nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.auth.Verify(request(tc.query, tc.header))
			if (err != nil) != tc.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, ErrUnauthenticated) {
				t.Errorf("error %v does not wrap ErrUnauthenticated", err)
			}
		})
	}
}
