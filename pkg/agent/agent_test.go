package agent

import (
	"reflect"
	"testing"
)

func TestInvocationArgsUsesInstalledPathAsArgv0(t *testing.T) {
	got := InvocationArgs(8080, false)
	want := []string{Path, "agent", "-p", "8080"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("InvocationArgs(8080, false) = %v, want %v", got, want)
	}
}

func TestInvocationArgsListenModeAppendsFlag(t *testing.T) {
	got := InvocationArgs(3000, true)
	want := []string{Path, "agent", "-p", "3000", "-l"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("InvocationArgs(3000, true) = %v, want %v", got, want)
	}
}
