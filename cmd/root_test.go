package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/linkcheck"
)

// These tests swap the package-level factory, so they do not run in parallel.

type fakeApp struct {
	checked []linkcheck.Request
	ran     bool
	closed  bool
	runErr  error
	summary linkcheck.Summary
}

func (f *fakeApp) Run(context.Context) error {
	f.ran = true
	return f.runErr
}

func (f *fakeApp) Check(_ context.Context, req linkcheck.Request, w io.Writer) (linkcheck.Summary, error) {
	f.checked = append(f.checked, req)
	if _, err := fmt.Fprintln(w, `{"type":"complete","total":1,"checked":1,"timedOut":false}`); err != nil {
		return linkcheck.Summary{}, err
	}
	return f.summary, nil
}

func (f *fakeApp) Close(context.Context) error {
	f.closed = true
	return nil
}

func (f *fakeApp) Logger() *zap.Logger { return zap.NewNop() }

func withFakeApp(t *testing.T, app *fakeApp, factoryErr error) {
	t.Helper()
	orig := newApp
	newApp = func(context.Context, string) (App, error) {
		if factoryErr != nil {
			return nil, factoryErr
		}
		return app, nil
	}
	t.Cleanup(func() { newApp = orig })
}

func execute(args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCheckCommandStreamsResults(t *testing.T) {
	app := &fakeApp{summary: linkcheck.Summary{Total: 1, Checked: 1}}
	withFakeApp(t, app, nil)

	out, err := execute("check", "--page", "https://example.com/", "https://example.com/about")
	require.NoError(t, err)
	require.Contains(t, out, `"type":"complete"`)
	require.Len(t, app.checked, 1)
	require.Equal(t, []string{"https://example.com/about"}, app.checked[0].URLs)
	require.Equal(t, "https://example.com/", app.checked[0].PageURL)
	require.True(t, app.closed)
}

func TestCheckCommandRejectsInvalidInput(t *testing.T) {
	app := &fakeApp{}
	withFakeApp(t, app, nil)

	_, err := execute("check", "--page", "https://example.com/", "mailto:someone@example.com")
	require.ErrorContains(t, err, "invalid input")
	require.Empty(t, app.checked)

	_, err = execute("check", "https://example.com/about")
	require.Error(t, err)
}

func TestCheckCommandReportsInterruption(t *testing.T) {
	app := &fakeApp{summary: linkcheck.Summary{Total: 3, Checked: 1, Disconnected: true}}
	withFakeApp(t, app, nil)

	_, err := execute("check", "--page", "https://example.com/", "https://example.com/a")
	require.ErrorContains(t, err, "interrupted after 1 of 3")
}

func TestServeCommand(t *testing.T) {
	app := &fakeApp{}
	withFakeApp(t, app, nil)

	_, err := execute("serve")
	require.NoError(t, err)
	require.True(t, app.ran)
	require.True(t, app.closed)

	failing := &fakeApp{runErr: errors.New("port in use")}
	withFakeApp(t, failing, nil)
	_, err = execute("serve")
	require.ErrorContains(t, err, "port in use")
}

func TestRootReportsFactoryError(t *testing.T) {
	withFakeApp(t, nil, errors.New("bad config"))

	_, err := execute("serve")
	require.ErrorContains(t, err, "bad config")
}
