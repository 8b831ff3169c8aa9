package mdb

import "testing"

func TestMemoryReadWriteWordRoundTrip(t *testing.T) {
	db, err := StartCmdAndAttachTo("/bin/sleep", "30")
	if err != nil {
		t.Fatalf("StartCmdAndAttachTo returned error: %v", err)
	}
	defer db.Close()

	addr := entryPointRuntimeAddress(t, db.Pid)

	original, err := db.ReadWord(addr)
	if err != nil {
		t.Fatalf("ReadWord returned error: %v", err)
	}
	defer db.WriteWord(addr, original)

	const testValue = 0x1122334455667788
	if err := db.WriteWord(addr, testValue); err != nil {
		t.Fatalf("WriteWord returned error: %v", err)
	}

	got, err := db.ReadWord(addr)
	if err != nil {
		t.Fatalf("ReadWord after write returned error: %v", err)
	}
	if got != testValue {
		t.Errorf("ReadWord after WriteWord(%#x) = %#x, want %#x", testValue, got, testValue)
	}
}

func TestRegisterWriteReadRoundTrip(t *testing.T) {
	db, err := StartCmdAndAttachTo("/bin/sleep", "30")
	if err != nil {
		t.Fatalf("StartCmdAndAttachTo returned error: %v", err)
	}
	defer db.Close()

	rax, ok := ByName("rax")
	if !ok {
		t.Fatal("rax missing from register table")
	}

	if err := db.Registers.Write(rax, 0x2a); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	got, err := db.Registers.Read(rax)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if got != 0x2a {
		t.Errorf("Read(rax) = %#x, want 0x2a", got)
	}
}
