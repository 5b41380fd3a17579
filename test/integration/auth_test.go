package integration

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/evileye/pkg/auth/bearer"
	"github.com/rhuss/evileye/pkg/config"
	"github.com/rhuss/evileye/pkg/logging"
)

func TestNoCredentialsIsAnonymous(t *testing.T) {
	app := newApp(t, nil).listen(t)

	res := app.graphql(t, `{ whoAmI }`, nil, nil)
	if res.Status != http.StatusOK || res.Data["whoAmI"] != "" {
		t.Errorf("status %d, whoAmI %v", res.Status, res.Data["whoAmI"])
	}
}

func TestWrongSecretIsAnonymousAndLogged(t *testing.T) {
	app := newApp(t, nil).listen(t)

	res := app.graphql(t, `{ whoAmI }`, nil, signedAs("johndoe", "wrong secret key"))
	if res.Status != http.StatusOK || res.Data["whoAmI"] != "" {
		t.Errorf("status %d, whoAmI %v", res.Status, res.Data["whoAmI"])
	}
	if !strings.Contains(app.logs.String(), logging.MsgInvalidAuthorization) {
		t.Error("rejection was not logged")
	}
}

func TestUnknownKeyIsAnonymous(t *testing.T) {
	app := newApp(t, nil).listen(t)

	res := app.graphql(t, `{ whoAmI }`, nil, signedAs("janedoe", "topsecret"))
	if res.Status != http.StatusOK || res.Data["whoAmI"] != "" {
		t.Errorf("status %d, whoAmI %v", res.Status, res.Data["whoAmI"])
	}
}

func TestValidSignatureSetsIdentity(t *testing.T) {
	app := newApp(t, nil).listen(t)

	res := app.graphql(t, `{ whoAmI }`, nil, signedAs("johndoe", "topsecret"))
	if res.Data["whoAmI"] != "johndoe" {
		t.Errorf("whoAmI = %v, want johndoe", res.Data["whoAmI"])
	}
}

func TestBearerToken(t *testing.T) {
	app := newApp(t, func(c *config.Config) { c.Auth.Bearer.Enabled = true }).listen(t)

	token, err := bearer.Issue("johndoe", "topsecret", time.Minute, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	res := app.graphql(t, `{ whoAmI }`, nil, func(r *http.Request, _ []byte) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if res.Data["whoAmI"] != "johndoe" {
		t.Errorf("whoAmI = %v, want johndoe", res.Data["whoAmI"])
	}
}

func TestRateLimit(t *testing.T) {
	app := newApp(t, func(c *config.Config) {
		c.RateLimit.Enabled = true
		c.RateLimit.RequestsPerMinute = 2
	}).listen(t)

	for i := 0; i < 2; i++ {
		if res := app.graphql(t, `{ whoAmI }`, nil, signedAs("johndoe", "topsecret")); res.Status != http.StatusOK {
			t.Fatalf("request %d: status %d", i, res.Status)
		}
	}

	req, _ := http.NewRequest("POST", app.base+"/graphql", strings.NewReader(`{"query":"{ whoAmI }"}`))
	signedAs("johndoe", "topsecret")(req, []byte(`{"query":"{ whoAmI }"}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("third request: status %d, want 429", resp.StatusCode)
	}
}
