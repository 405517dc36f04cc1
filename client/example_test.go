//go:build unix

package client_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/adamwoolhether/httpmulti/client"
	"github.com/adamwoolhether/httpmulti/client/errs"
)

func ExampleClient_Do() {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"msg":"hello"}`)
	}))
	defer ts.Close()

	c, err := client.Build()
	if err != nil {
		fmt.Println("build error:", err)
		return
	}
	defer c.Close()

	req, err := client.NewRequest(http.MethodGet, ts.URL)
	if err != nil {
		fmt.Println("request error:", err)
		return
	}

	var resp struct{ Msg string }
	if _, err := c.Do(context.Background(), req, client.WithExpectStatus(http.StatusOK), client.WithDestination(&resp)); err != nil {
		fmt.Println("do error:", err)
		return
	}

	fmt.Println(resp.Msg)
	// Output: hello
}

func ExampleClient_Submit() {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.TrimPrefix(r.URL.Path, "/"))
	}))
	defer ts.Close()

	c, err := client.Build(client.WithPoolSize(2))
	if err != nil {
		fmt.Println("build error:", err)
		return
	}
	defer c.Close()

	var results []*client.Result
	for _, name := range []string{"a", "b", "c"} {
		req, _ := client.NewRequest(http.MethodGet, ts.URL+"/"+name)
		r, err := c.Submit(context.Background(), req)
		if err != nil {
			fmt.Println("submit error:", err)
			return
		}
		results = append(results, r)
	}

	for _, r := range results {
		resp, err := r.Response()
		if err != nil {
			fmt.Println("transfer error:", err)
			continue
		}
		fmt.Println(resp.StatusCode, resp.Text())
	}
	// Output:
	// 200 a
	// 200 b
	// 200 c
}

func ExampleResult_Cancel() {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	c, err := client.Build()
	if err != nil {
		fmt.Println("build error:", err)
		return
	}
	defer c.Close()

	req, _ := client.NewRequest(http.MethodGet, ts.URL)
	r, err := c.Submit(context.Background(), req)
	if err != nil {
		fmt.Println("submit error:", err)
		return
	}

	r.Cancel()
	fmt.Println(errs.IsConfiguration(r.Err()), r.Err() != nil)
	// Output: false true
}

func ExampleBuild_configurationError() {
	c, err := client.Build()
	if err != nil {
		fmt.Println("build error:", err)
		return
	}
	defer c.Close()

	req, _ := client.NewRequest(http.MethodGet, "http://example.invalid", client.WithBody([]byte("payload")))
	_, err = c.Submit(context.Background(), req)

	fmt.Println(errs.IsConfiguration(err))
	// Output: true
}
