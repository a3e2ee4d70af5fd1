package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/cloudcity/internal/report"
)

func TestRunGate(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		response   string
		wantErr    error
		wantErrMsg string
		wantOut    []string
	}{
		{
			name:   "pass",
			status: http.StatusOK,
			response: `{"pass":true,"budgetStatus":"OK","reason":"Projected cost within budget",
				"recommendedAction":"Proceed","requiredApproval":false,"currentTotal":"98.74",
				"projectedTotal":"148.74","monthlyBudget":"1000.00","budgetUsedPercent":14.87,
				"budgetWarningThreshold":80,"strictMode":false,"terraformPlanEligible":true,
				"eligibilityReason":"graph contains a VPC"}`,
			wantOut: []string{
				"Pipeline Gate: PASS",
				"Projected Total: 148.74",
				"Budget Used: 14.87%",
			},
		},
		{
			name:   "fail",
			status: http.StatusOK,
			response: `{"pass":false,"budgetStatus":"EXCEEDED","reason":"Projected cost exceeds budget",
				"recommendedAction":"Reduce cost","requiredApproval":true,"currentTotal":"98.74",
				"projectedTotal":"1048.74","monthlyBudget":"1000.00","budgetUsedPercent":104.87,
				"budgetWarningThreshold":null,"strictMode":false,"terraformPlanEligible":true,
				"eligibilityReason":"graph contains a VPC"}`,
			wantErr: ErrGateFailed,
			wantOut: []string{"Pipeline Gate: FAIL", "Budget Status: EXCEEDED"},
		},
		{
			name:       "unknown project",
			status:     http.StatusNotFound,
			response:   `{"error":"project not found: p-1"}`,
			wantErrMsg: "returned 404: project not found: p-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]interface{}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/api/v1/projects/p-1/pipeline/check", r.URL.Path)
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.response))
			}))
			defer srv.Close()

			var out bytes.Buffer
			err := runGate(context.Background(), &out, gateOptions{
				server:    srv.URL + "/",
				projectID: "p-1",
				delta:     "50.00",
				strict:    true,
				format:    report.FormatText,
			})

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantErrMsg != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrMsg)
			default:
				assert.NoError(t, err)
			}
			for _, want := range tt.wantOut {
				assert.Contains(t, out.String(), want)
			}
			assert.Equal(t, "50", got["projectedMonthlyDelta"])
			assert.Equal(t, true, got["strictMode"])
		})
	}
}

func TestRunGate_InvalidInput(t *testing.T) {
	var out bytes.Buffer

	err := runGate(context.Background(), &out, gateOptions{server: "http://localhost", delta: "1", format: report.FormatText})
	assert.ErrorContains(t, err, "--project")

	err = runGate(context.Background(), &out, gateOptions{server: "http://localhost", projectID: "p", delta: "lots", format: report.FormatText})
	assert.ErrorContains(t, err, "invalid delta")

	err = runGate(context.Background(), &out, gateOptions{server: "http://localhost", projectID: "p", delta: "1", format: "xml"})
	assert.ErrorContains(t, err, "unsupported format")
}

func TestRunList(t *testing.T) {
	dir := t.TempDir()
	src := `provider "aws" {
  region = var.region
}

variable "region" {
  default = "us-east-1"
}

resource "aws_vpc" "vpc_1" {
  cidr_block = "10.0.0.0/16"
}

resource "aws_subnet" "subnet_1" {
  vpc_id     = aws_vpc.vpc_1.id
  cidr_block = "10.0.1.0/24"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.tf"), []byte(src), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	var out bytes.Buffer
	require.NoError(t, runList(&out, dir))

	assert.Contains(t, out.String(), "ADDRESS")
	assert.Regexp(t, `aws_vpc\.vpc_1\s+aws_vpc\s+-`, out.String())
	assert.Regexp(t, `aws_subnet\.subnet_1\s+aws_subnet\s+aws_vpc\.vpc_1`, out.String())
}

func TestRunList_Empty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runList(&out, t.TempDir()))
	assert.Equal(t, "No resources found in the Terraform files.\n", out.String())

	assert.Error(t, runList(&out, filepath.Join(t.TempDir(), "missing")))
}
