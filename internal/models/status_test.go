package models

import "testing"

func TestStatusIsTerminal(t *testing.T) {
	cases := map[Status]bool{
		StatusPending: false,
		StatusRunning: false,
		StatusSuccess: true,
		StatusFailure: true,
	}
	for status, want := range cases {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}

func TestStatusCanTransition(t *testing.T) {
	if !StatusPending.CanTransition(StatusRunning) {
		t.Error("pending -> running should be legal")
	}
	if StatusPending.CanTransition(StatusSuccess) {
		t.Error("pending -> success should be illegal")
	}
	if !StatusRunning.CanTransition(StatusSuccess) {
		t.Error("running -> success should be legal")
	}
	if !StatusRunning.CanTransition(StatusFailure) {
		t.Error("running -> failure should be legal")
	}
	if StatusSuccess.CanTransition(StatusRunning) {
		t.Error("success is terminal, no transitions out")
	}
	if StatusFailure.CanTransition(StatusRunning) {
		t.Error("failure is terminal, no transitions out")
	}
}

func TestJobRecordDeriveStatus(t *testing.T) {
	record := JobRecord{Steps: []JobStepRecord{
		{Status: StatusSuccess, Kind: StepKindAuto},
		{Status: StatusRunning, Kind: StepKindAuto},
	}}
	if got := record.DeriveStatus(); got != StatusRunning {
		t.Errorf("expected running while a step is in flight, got %s", got)
	}

	record = JobRecord{Steps: []JobStepRecord{
		{Status: StatusSuccess, Kind: StepKindAuto},
		{Status: StatusFailure, Kind: StepKindAuto},
	}}
	if got := record.DeriveStatus(); got != StatusFailure {
		t.Errorf("expected failure when any step failed, got %s", got)
	}

	record = JobRecord{Steps: []JobStepRecord{
		{Status: StatusSuccess, Kind: StepKindAuto},
		{Status: StatusSuccess, Kind: StepKindManual},
	}}
	if got := record.DeriveStatus(); got != StatusSuccess {
		t.Errorf("expected success when every step succeeded, got %s", got)
	}
}

func TestJobStepRecordDeriveStatus(t *testing.T) {
	step := JobStepRecord{Kind: StepKindAuto, Resources: []JobStepResourceRecord{
		{Status: StatusSuccess},
		{Status: StatusSuccess},
	}}
	if got := step.DeriveStatus(); got != StatusSuccess {
		t.Errorf("expected success, got %s", got)
	}

	step.Resources = append(step.Resources, JobStepResourceRecord{Status: StatusFailure})
	if got := step.DeriveStatus(); got != StatusFailure {
		t.Errorf("expected failure when any resource failed, got %s", got)
	}

	manual := JobStepRecord{Kind: StepKindManual, Status: StatusRunning}
	if got := manual.DeriveStatus(); got != StatusRunning {
		t.Errorf("manual step should report its own status unchanged, got %s", got)
	}
}
