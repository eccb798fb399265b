package analysis

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func TestExecuteRunsJobsInOrder(t *testing.T) {
	tbl := testTable()
	provider := &scriptedProvider{replies: []string{
		"analysis of Apollo",
		"analysis of Zeus",
		"the combined report",
	}}
	e := NewEngine(provider, nil)

	batch := BuildBatch([]Job{
		{Kind: JobProject, Subject: "Apollo", Slice: tbl, Prompt: "first"},
		{Kind: JobProject, Subject: "Zeus", Slice: tbl, Prompt: "second"},
	})

	out, err := e.Execute(context.Background(), batch)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out != "the combined report" {
		t.Errorf("Execute() = %q, want the report job's output", out)
	}
	if len(provider.requests) != 3 {
		t.Fatalf("provider saw %d calls, want 3", len(provider.requests))
	}
	if provider.requests[0].Prompt != "first" || provider.requests[1].Prompt != "second" {
		t.Error("analysis jobs ran out of order")
	}
}

func TestExecuteFeedsOutputsIntoReport(t *testing.T) {
	tbl := testTable()
	provider := &scriptedProvider{replies: []string{
		"output alpha",
		"output beta",
		"report",
	}}
	e := NewEngine(provider, nil)

	batch := BuildBatch([]Job{
		{Kind: JobGeneral, Slice: tbl, Prompt: "a"},
		{Kind: JobGeneral, Slice: tbl, Prompt: "b"},
	})

	if _, err := e.Execute(context.Background(), batch); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	reportPrompt := provider.requests[2].Prompt
	if !strings.Contains(reportPrompt, "output alpha") || !strings.Contains(reportPrompt, "output beta") {
		t.Errorf("report prompt missing earlier outputs:\n%s", reportPrompt)
	}
}

func TestExecuteAbortsOnFailure(t *testing.T) {
	tbl := testTable()
	provider := &scriptedProvider{
		replies: []string{"fine", "", ""},
		errs:    []error{nil, fmt.Errorf("rate limited")},
	}
	e := NewEngine(provider, nil)

	batch := BuildBatch([]Job{
		{Kind: JobGeneral, Slice: tbl, Prompt: "a"},
		{Kind: JobGeneral, Slice: tbl, Prompt: "b"},
	})

	if _, err := e.Execute(context.Background(), batch); err == nil {
		t.Fatal("Execute() = nil error, want abort on failed job")
	}
	// The report job must not run after a failure.
	if len(provider.requests) != 2 {
		t.Errorf("provider saw %d calls after failure, want 2", len(provider.requests))
	}
}

func TestExecuteEmptyBatch(t *testing.T) {
	e := NewEngine(&scriptedProvider{}, nil)

	if _, err := e.Execute(context.Background(), nil); err == nil {
		t.Error("Execute(nil) = nil error, want error for empty batch")
	}
}
