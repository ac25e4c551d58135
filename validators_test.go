package main

import (
	"testing"

	"github.com/mauipipe/visionresizer/sizer"
)

func Test_CheckHostInWhiteListWithEmptyConfiguration(t *testing.T) {
	config := new(Configuration)
	validator := Validator{config}

	if err := validator.CheckHostInWhiteList("doesnt exists"); err == nil {
		t.Errorf("Missing error returning!")
	}
}

func Test_CheckHostInWhiteListWithSomeHostsInWhiteList(t *testing.T) {
	config := new(Configuration)
	config.HostWhiteList = []string{"http://www.google.com", "two hosts"}
	validator := Validator{config}

	err := validator.CheckHostInWhiteList("http://www.sergiosola.com/")
	if err == nil {
		t.Errorf("Should return an error!!!")
	}
}

func Test_CheckHostInWhiteListWithValidHost(t *testing.T) {
	config := new(Configuration)
	config.HostWhiteList = []string{"one host", "sergiosola.com"}
	validator := Validator{config}

	err := validator.CheckHostInWhiteList("https://sergiosola.com/images?withParams=dsada")
	if err != nil {
		t.Errorf("Should not return an error: %v", err)
	}
}

func Test_CheckHostInWhiteListWithValidPattern(t *testing.T) {
	config := new(Configuration)
	config.HostWhiteList = []string{"www.google.com", "([a-z]+).cdn.google.com"}
	validator := Validator{config}

	err := validator.CheckHostInWhiteList("https://dsadsaasds.cdn.google.com/images?withParams=dsada")
	if err != nil {
		t.Errorf("Should not return an error: %v", err)
	}
}

func Test_CheckHostInWhiteListWithBrokenPattern(t *testing.T) {
	config := new(Configuration)
	config.HostWhiteList = []string{"([a-z"}
	validator := Validator{config}

	if err := validator.CheckHostInWhiteList("https://cdn.google.com/a.jpg"); err == nil {
		t.Errorf("Should return an error for an invalid pattern")
	}
}

func Test_CheckSizeIsAllowed(t *testing.T) {
	config := new(Configuration)
	config.SizeLimits = sizer.Size{Width: 1000, Height: 1000}
	validator := Validator{config}

	err := validator.CheckRequestNewSize(sizer.Size{Width: 993, Height: 399})
	if err != nil {
		t.Errorf("Should not return an error: %v", err)
	}
}

func Test_CheckSizeIsNotAllowed(t *testing.T) {
	config := new(Configuration)
	config.SizeLimits = sizer.Size{Width: 1000, Height: 1000}
	validator := Validator{config}

	for _, size := range []sizer.Size{{Width: 9999, Height: 399}, {Width: 10, Height: 1000}, {}} {
		if err := validator.CheckRequestNewSize(size); err == nil {
			t.Errorf("Should return an error for %v", size)
		}
	}
}

func Test_CheckFittedPanoramaIsNotAllowed(t *testing.T) {
	config := new(Configuration)
	config.SizeLimits = sizer.Size{Width: 2000, Height: 2000}
	validator := Validator{config}

	size, err := sizer.Fit(1000, 1, sizer.Size{Height: 1999})
	if err != nil {
		t.Fatalf("Should not return an error: %v", err)
	}
	if err := validator.CheckRequestNewSize(size); err == nil {
		t.Errorf("Should return an error for %v", size)
	}
}

func Test_CheckBudget(t *testing.T) {
	config := new(Configuration)
	config.SizeLimits = sizer.Size{Width: 100, Height: 100}
	validator := Validator{config}

	if err := validator.CheckBudget(sizer.Budget{Factor: 32, MinPixels: 1024, MaxPixels: 4096}); err != nil {
		t.Errorf("Should not return an error: %v", err)
	}
	if err := validator.CheckBudget(sizer.Budget{Factor: 32, MinPixels: 4096, MaxPixels: 1024}); err == nil {
		t.Errorf("Should reject min pixels above max pixels")
	}
	if err := validator.CheckBudget(sizer.Budget{Factor: 32, MinPixels: 20000, MaxPixels: 40000}); err == nil {
		t.Errorf("Should reject a budget beyond the size limits")
	}
}
