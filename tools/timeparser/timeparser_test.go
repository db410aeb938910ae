package timeparser_test

import (
	"testing"
	"time"

	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/tools/timeparser"
)

func TestParseGatewayTimestamp_RFC3339(t *testing.T) {
	parsed, err := timeparser.ParseGatewayTimestamp("2026-03-01T10:30:00Z")
	if err != nil {
		t.Fatalf("Expected parse to succeed, got %v", err)
	}
	expected := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	if !parsed.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, parsed)
	}
}

func TestParseGatewayTimestamp_SQLStyle(t *testing.T) {
	parsed, err := timeparser.ParseGatewayTimestamp("2026-03-01 10:30:00")
	if err != nil {
		t.Fatalf("Expected parse to succeed, got %v", err)
	}
	expected := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	if !parsed.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, parsed)
	}
}

func TestParseGatewayTimestamp_LegacyFormat(t *testing.T) {
	parsed, err := timeparser.ParseGatewayTimestamp("01/03/2026 10:30:00")
	if err != nil {
		t.Fatalf("Expected parse to succeed, got %v", err)
	}
	expected := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	if !parsed.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, parsed)
	}
}

func TestParseGatewayTimestamp_Invalid(t *testing.T) {
	_, err := timeparser.ParseGatewayTimestamp("not-a-timestamp")
	if err == nil {
		t.Error("Expected error for unparseable timestamp")
	}
}

func TestIsWithinTolerance(t *testing.T) {
	received := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

	if !timeparser.IsWithinTolerance(received.Add(-4*time.Minute), received, 5) {
		t.Error("Expected 4 minutes in the past to be within a 5 minute tolerance")
	}
	if !timeparser.IsWithinTolerance(received.Add(4*time.Minute), received, 5) {
		t.Error("Expected 4 minutes in the future to be within a 5 minute tolerance")
	}
	if timeparser.IsWithinTolerance(received.Add(-6*time.Minute), received, 5) {
		t.Error("Expected 6 minutes in the past to be outside a 5 minute tolerance")
	}
}
