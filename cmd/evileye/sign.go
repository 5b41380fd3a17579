package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhuss/evileye/pkg/auth/bearer"
	"github.com/rhuss/evileye/pkg/auth/signature"
)

type signOptions struct {
	keyID  string
	secret string
	method string
	target string
	data   string
	date   string
	bearer bool
	ttl    time.Duration
}

func newSignCmd() *cobra.Command {
	var o signOptions

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print authentication headers for a request",
		Long: `Print the Date and Authorization headers that authenticate a request
as the given key. With --bearer, print an HS256 bearer token instead.

  evileye sign --key-id ops --secret s3cret --data '{"query":"{ whoAmI }"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			headers, err := signHeaders(o, time.Now())
			if err != nil {
				return err
			}
			for _, h := range headers {
				fmt.Fprintln(cmd.OutOrStdout(), h)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&o.keyID, "key-id", "", "Key id to claim")
	cmd.Flags().StringVar(&o.secret, "secret", "", "Shared secret of the key")
	cmd.Flags().StringVarP(&o.method, "method", "X", http.MethodPost, "HTTP method")
	cmd.Flags().StringVar(&o.target, "url", "/graphql", "Request path with query, or a full URL")
	cmd.Flags().StringVarP(&o.data, "data", "d", "", "Request body")
	cmd.Flags().StringVar(&o.date, "date", "", "Date header value (default: now)")
	cmd.Flags().BoolVar(&o.bearer, "bearer", false, "Issue a bearer token instead of a signature")
	cmd.Flags().DurationVar(&o.ttl, "ttl", time.Hour, "Bearer token lifetime")
	_ = cmd.MarkFlagRequired("key-id")
	_ = cmd.MarkFlagRequired("secret")

	return cmd
}

// signHeaders returns the header lines authenticating the request o
// describes.
func signHeaders(o signOptions, now time.Time) ([]string, error) {
	if o.bearer {
		token, err := bearer.Issue(o.keyID, o.secret, o.ttl, now)
		if err != nil {
			return nil, err
		}
		return []string{"Authorization: Bearer " + token}, nil
	}

	u, err := url.Parse(o.target)
	if err != nil {
		return nil, fmt.Errorf("parsing url: %w", err)
	}
	date := o.date
	if date == "" {
		date = now.UTC().Format(http.TimeFormat)
	}

	sig := signature.Sign(o.secret, strings.ToUpper(o.method), u.RequestURI(), date, []byte(o.data))
	params := signature.Params{KeyID: o.keyID, Algorithm: signature.Algorithm, Signature: sig}
	return []string{
		"Date: " + date,
		"Authorization: " + params.String(),
	}, nil
}
