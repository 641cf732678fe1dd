// Package jvm probes for a usable Java runtime. The server jar is the only
// consumer; the tool itself never needs Java.
package jvm

import (
	"fmt"
	"os/exec"
	"regexp"
)

var versionPattern = regexp.MustCompile(`version "([^"]+)"`)

// Check verifies a Java runtime is installed and answering.
func Check() error {
	if _, err := exec.LookPath("java"); err != nil {
		return fmt.Errorf("java not found, install it with: sudo apt install openjdk-21-jre-headless")
	}
	if err := exec.Command("java", "-version").Run(); err != nil {
		return fmt.Errorf("java is installed but not runnable: %w", err)
	}
	return nil
}

// Version returns the runtime version string, e.g. "21.0.2".
func Version() (string, error) {
	// java prints its banner on stderr.
	out, err := exec.Command("java", "-version").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("java not runnable: %w", err)
	}
	m := versionPattern.FindSubmatch(out)
	if m == nil {
		return "", fmt.Errorf("could not parse java version from %q", out)
	}
	return string(m[1]), nil
}
