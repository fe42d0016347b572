package main

import (
	"fmt"

	"github.com/go-resty/resty/v2"
)

func newClient() *resty.Client {
	c := resty.New().SetBaseURL(apiFlag)
	if tokenFlag != "" {
		c.SetAuthToken(tokenFlag)
	}
	return c
}

// checkResp returns an error for any non-2xx response, echoing the body.
func checkResp(resp *resty.Response, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode(), resp.String())
	}
	return resp.Body(), nil
}
