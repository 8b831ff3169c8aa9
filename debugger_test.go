package mdb

import (
	"errors"
	"os/exec"
	"syscall"
	"testing"
)

func processExists(pid int) bool {
	err := syscall.Kill(pid, 0)
	return !errors.Is(err, syscall.ESRCH)
}

func TestStartCmdAndAttachTo(t *testing.T) {
	db, err := StartCmdAndAttachTo("/bin/sleep", "30")
	if err != nil {
		t.Fatalf("StartCmdAndAttachTo returned error: %v", err)
	}
	defer db.Close()

	if !processExists(db.Pid) {
		t.Errorf("process %d does not exist after launch", db.Pid)
	}
	if !db.State().Stopped() {
		t.Errorf("expected process to be stopped right after launch, got %v", db.State())
	}
}

func TestStartCmdAndAttachToNoSuchProgram(t *testing.T) {
	db, err := StartCmdAndAttachTo("/no/such/program")
	if err == nil {
		t.Fatal("expected an error launching a nonexistent program")
	}
	if db != nil {
		t.Errorf("expected a nil Debugger on error, got %+v", db)
	}
}

func TestAttachTo(t *testing.T) {
	cmd := exec.Command("/bin/sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start target process: %v", err)
	}
	defer cmd.Process.Kill()

	db, err := AttachTo(cmd.Process.Pid)
	if err != nil {
		t.Fatalf("AttachTo returned error: %v", err)
	}
	defer db.Close()

	if db.Pid != cmd.Process.Pid {
		t.Errorf("db.Pid = %d, want %d", db.Pid, cmd.Process.Pid)
	}
}

func TestAttachToInvalidPid(t *testing.T) {
	_, err := AttachTo(0)
	if err == nil {
		t.Fatal("expected an error attaching to pid 0")
	}
}

func TestContinueToExit(t *testing.T) {
	db, err := StartCmdAndAttachTo("/bin/true")
	if err != nil {
		t.Fatalf("StartCmdAndAttachTo returned error: %v", err)
	}
	defer db.Close()

	state, err := db.Continue()
	if err != nil {
		t.Fatalf("Continue returned error: %v", err)
	}
	if !state.Exited() {
		t.Errorf("expected process to have exited, got %v", state)
	}
}
