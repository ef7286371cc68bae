package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var knownDevices = map[string]struct{}{
	"auto": {},
	"cpu":  {},
	"gpu":  {},
}

var knownOutputFormats = map[string]struct{}{
	"txt":  {},
	"json": {},
	"md":   {},
	"srt":  {},
	"vtt":  {},
}

// OutputFormats returns the supported transcript output formats in sorted order.
func OutputFormats() []string {
	formats := make([]string, 0, len(knownOutputFormats))
	for format := range knownOutputFormats {
		formats = append(formats, format)
	}
	sort.Strings(formats)
	return formats
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if c.Transcription.Model == "" {
		return errors.New("transcription.model must be set")
	}
	if _, ok := knownDevices[c.Transcription.Device]; !ok {
		return fmt.Errorf("transcription.device must be one of auto, cpu, gpu (got %q)", c.Transcription.Device)
	}
	if _, ok := knownOutputFormats[c.Transcription.OutputFormat]; !ok {
		return fmt.Errorf("transcription.output_format must be one of %s (got %q)",
			strings.Join(OutputFormats(), ", "), c.Transcription.OutputFormat)
	}
	if c.Transcription.SegmentSeconds <= 0 {
		return errors.New("transcription.segment_seconds must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	switch c.Workflow.RunPolicy {
	case RunPolicyContinue, RunPolicyStop:
	default:
		return fmt.Errorf("workflow.run_policy must be %q or %q (got %q)",
			RunPolicyContinue, RunPolicyStop, c.Workflow.RunPolicy)
	}
	if err := ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
	}); err != nil {
		return err
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
