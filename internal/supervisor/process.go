package supervisor

import (
	"bytes"
	"fmt"
	"os/exec"
	"time"
)

// ChildJarName is the expected launcher jar in the working directory
// (§4.4 step 7, §6 "Filesystem layout").
const ChildJarName = "fabric-server-launcher.jar"

// javaBinary is the executable Spawn invokes. Overridable in tests so
// Spawn/Wait can be exercised against a stand-in script instead of a real
// JVM.
var javaBinary = "java"

// javaArgs is the fixed G1GC-tuned JVM argument vector every launch uses
// (§4.4 step 7: "fixed JVM argument vector").
var javaArgs = []string{
	"-Xms1G",
	"-Xmx2G",
	"-XX:+UseG1GC",
	"-XX:+ParallelRefProcEnabled",
	"-XX:MaxGCPauseMillis=200",
	"-XX:+UnlockExperimentalVMOptions",
	"-XX:+DisableExplicitGC",
	"-XX:+AlwaysPreTouch",
	"-XX:G1NewSizePercent=30",
	"-XX:G1MaxNewSizePercent=40",
	"-XX:G1HeapRegionSize=8M",
	"-XX:G1ReservePercent=20",
	"-XX:G1HeapWastePercent=5",
	"-XX:G1MixedGCCountTarget=4",
	"-XX:InitiatingHeapOccupancyPercent=15",
	"-XX:G1MixedGCLiveThresholdPercent=90",
	"-XX:G1RSetUpdatingPauseTimePercent=5",
	"-XX:SurvivorRatio=32",
	"-XX:+PerfDisableSharedMem",
	"-XX:MaxTenuringThreshold=1",
	"-jar", ChildJarName,
	"nogui",
}

// Child wraps the spawned game-server process, capturing its stderr for
// post-mortem logging (§4.4 step 7).
type Child struct {
	cmd    *exec.Cmd
	stderr *bytes.Buffer
}

// Spawn starts the child JVM in workDir with the fixed argument vector.
// The process is left to exit on its own "/stop" (issued by the proxy's
// shutdown tail); nothing here sends it a signal.
func Spawn(workDir string) (*Child, error) {
	cmd := exec.Command(javaBinary, javaArgs...)
	cmd.Dir = workDir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("supervisor: spawning child: %w", err)
	}

	return &Child{cmd: cmd, stderr: &stderr}, nil
}

// Wait blocks until the child exits, or timeout elapses first (§4.4
// shutdown: "await the child's exit, bounded by idleTimeout"). timedOut is
// true when the deadline won the race; the child may still be running.
func (c *Child) Wait(timeout time.Duration) (err error, timedOut bool) {
	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()

	select {
	case err = <-done:
		return err, false
	case <-time.After(timeout):
		return nil, true
	}
}

// Stderr returns everything the child has written to stderr so far.
func (c *Child) Stderr() []byte {
	return c.stderr.Bytes()
}
