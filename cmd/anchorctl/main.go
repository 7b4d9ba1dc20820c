// Command anchorctl drives the anchoring workflow from the command line:
// generate a dossier for a document, anchor it, and verify references.
//
// Authentication uses the long-lived API token issued by POST /profile/token:
//
//	export IRIS_API_KEY="<principal-id>:<token>"
//	anchorctl dossier <document-id> -bundle report.json
//	anchorctl anchor <dossier-id>
//	anchorctl verify <ref-or-digest>
//
// Exit codes mirror the server's error taxonomy so scripts can branch on
// outcomes; an already-anchored digest exits 4.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	dErrors "iris/pkg/domain-errors"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := flag.NewFlagSet("anchorctl", flag.ExitOnError)
	apiURL := flags.String("api", envOr("IRIS_API_URL", "http://localhost:8080"), "base URL of the iris API")
	apiKey := flags.String("key", os.Getenv("IRIS_API_KEY"), "API key as <principal-id>:<token>")
	bundlePath := flags.String("bundle", "", "bundle file for the dossier command (defaults to stdin)")
	flags.Usage = usage(flags)

	if len(args) < 1 {
		flags.Usage()
		return 2
	}
	command := args[0]
	if err := flags.Parse(args[1:]); err != nil {
		return 2
	}

	c := &client{
		base:   *apiURL,
		apiKey: *apiKey,
		http:   &http.Client{Timeout: 5 * time.Minute},
	}

	var err error
	switch command {
	case "dossier":
		err = c.generateDossier(flags.Arg(0), *bundlePath)
	case "anchor":
		err = c.anchor(flags.Arg(0), "anchor")
	case "reconcile":
		err = c.anchor(flags.Arg(0), "reconcile")
	case "verify":
		err = c.verify(flags.Arg(0))
	default:
		flags.Usage()
		return 2
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "anchorctl:", err)
		return dErrors.ExitCode(dErrors.CodeOf(err))
	}
	return 0
}

func usage(flags *flag.FlagSet) func() {
	return func() {
		fmt.Fprintln(os.Stderr, `Usage:
  anchorctl dossier <document-id> [-bundle file]
  anchorctl anchor <dossier-id>
  anchorctl reconcile <dossier-id>
  anchorctl verify <ref-or-digest>

Flags:`)
		flags.PrintDefaults()
	}
}

type client struct {
	base   string
	apiKey string
	http   *http.Client
}

// apiError is the server's uniform error body.
type apiError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

func (c *client) do(method, path string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, "cannot reach the iris API")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (c *client) fail(status int, raw apiError) error {
	if raw.Error == "" {
		return dErrors.Newf(dErrors.CodeInternal, "unexpected status %d", status)
	}
	return dErrors.New(dErrors.Code(raw.Error), raw.Description)
}

func (c *client) generateDossier(documentID, bundlePath string) error {
	if documentID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "document id is required")
	}
	source := os.Stdin
	if bundlePath != "" {
		f, err := os.Open(bundlePath)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeBadRequest, "open bundle file")
		}
		defer f.Close()
		source = f
	}
	bundle, err := io.ReadAll(source)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "read bundle")
	}
	if !json.Valid(bundle) {
		return dErrors.New(dErrors.CodeBadRequest, "bundle must be valid JSON")
	}

	var combined struct {
		ID     string `json:"id"`
		Digest string `json:"digest"`
		apiError
	}
	status, err := c.do(http.MethodPost, "/documents/"+documentID+"/dossiers",
		map[string]json.RawMessage{"bundle": bundle}, &combined)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return c.fail(status, combined.apiError)
	}
	fmt.Printf("dossier %s\ndigest  %s\n", combined.ID, combined.Digest)
	return nil
}

func (c *client) anchor(dossierID, operation string) error {
	if dossierID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "dossier id is required")
	}

	var combined struct {
		Certificate struct {
			ID          string `json:"id"`
			Digest      string `json:"digest"`
			Ref         string `json:"ref"`
			ExplorerURL string `json:"explorer_url"`
		} `json:"certificate"`
		Reused bool `json:"reused"`
		apiError
	}
	status, err := c.do(http.MethodPost, "/dossiers/"+dossierID+"/"+operation, nil, &combined)
	if err != nil {
		return err
	}
	if combined.Certificate.Ref == "" {
		return c.fail(status, combined.apiError)
	}

	fmt.Printf("digest   %s\nref      %s\nexplorer %s\n",
		combined.Certificate.Digest, combined.Certificate.Ref, combined.Certificate.ExplorerURL)
	if combined.Reused {
		fmt.Println("already anchored, adopted existing record")
		return dErrors.New(dErrors.CodeAlreadyAnchored, "digest was already anchored")
	}
	return nil
}

func (c *client) verify(ref string) error {
	if ref == "" {
		return dErrors.New(dErrors.CodeBadRequest, "reference or digest is required")
	}

	var combined struct {
		Exists        bool   `json:"exists"`
		Digest        string `json:"digest"`
		Ref           string `json:"ref"`
		Submitter     string `json:"submitter"`
		Confirmations int    `json:"confirmations"`
		ExplorerURL   string `json:"explorer_url"`
		apiError
	}
	status, err := c.do(http.MethodGet, "/verify/"+ref, nil, &combined)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return c.fail(status, combined.apiError)
	}
	if !combined.Exists {
		fmt.Println("not anchored")
		return dErrors.New(dErrors.CodeNotFound, "no ledger record for "+ref)
	}

	fmt.Printf("anchored\ndigest        %s\nref           %s\nsubmitter     %s\nconfirmations %d\nexplorer      %s\n",
		combined.Digest, combined.Ref, combined.Submitter, combined.Confirmations, combined.ExplorerURL)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
