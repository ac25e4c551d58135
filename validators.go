package main

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/mauipipe/visionresizer/sizer"
)

type Validator struct {
	config *Configuration
}

// Checks if given request image host belongs to one in the
// white list.
func (v *Validator) CheckHostInWhiteList(requestUrl string) error {
	urlParsed, err := url.Parse(requestUrl)
	if err != nil {
		return err
	}

	for _, host := range v.config.HostWhiteList {
		match, err := regexp.MatchString(host, requestUrl)
		if err != nil {
			return fmt.Errorf("invalid white list pattern %q: %w", host, err)
		}
		if match {
			return nil
		}
	}

	return fmt.Errorf("host %s not allowed", urlParsed.Host)
}

// Validates if new request size is valid or not
func (v *Validator) CheckRequestNewSize(s sizer.Size) error {
	limits := v.config.SizeLimits

	if s.Width <= 0 && s.Height <= 0 {
		return fmt.Errorf("width or height must be set")
	}

	if s.Height >= limits.Height {
		return fmt.Errorf("height cannot be higher than %d", limits.Height)
	}

	if s.Width >= limits.Width {
		return fmt.Errorf("width cannot be higher than %d", limits.Width)
	}

	return nil
}

// Validates a pixel budget against the configured size limits
func (v *Validator) CheckBudget(b sizer.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}

	if limit := v.config.SizeLimits.Area(); limit > 0 && b.MinPixels > limit {
		return fmt.Errorf("min pixels %d exceed the size limit of %d pixels", b.MinPixels, limit)
	}

	return nil
}
