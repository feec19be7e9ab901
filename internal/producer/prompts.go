package producer

import (
	"fmt"
	"strings"

	"scriptforge/internal/blueprint"
	"scriptforge/internal/controller"
)

// systemPrompt frames every producer call.
const systemPrompt = `You are a DevOps engineer specializing in containerization and system configuration. Your task is to create installation scripts that run inside container environments. Focus on reliable, efficient scripts that work on both Alpine and Debian-based images. Provide clear, well-commented shell scripts that handle edge cases and follow best practices.`

// exampleScript is shown to the model as a reference for structure: OS
// detection, official-source download, and a verification step at the end.
const exampleScript = `#!/bin/sh
set -e

# Example installation script for Python 3.11
echo "Installing Python 3.11..."

# Detect OS
if [ -f /etc/os-release ]; then
    . /etc/os-release
    OS=$NAME
else
    OS=$(uname -s)
fi

case "$OS" in
*Alpine*)
    apk add --no-cache wget tar build-base openssl-dev zlib-dev
    ;;
*Debian* | *Ubuntu*)
    apt-get update
    apt-get install -y wget build-essential libssl-dev zlib1g-dev
    ;;
*)
    echo "Unsupported OS: $OS"
    exit 1
    ;;
esac

wget https://www.python.org/ftp/python/3.11.0/Python-3.11.0.tgz
tar -xzf Python-3.11.0.tgz
cd Python-3.11.0
./configure
make -j"$(nproc)"
make install

# Verify installation
python3.11 --version

echo "Python 3.11 installed successfully"
`

// buildGeneratePrompt asks for an initial script for spec.
func buildGeneratePrompt(spec blueprint.Spec) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Create an installation script for %s version %s using package manager %s.\n\n",
		spec.Technology, spec.Version, spec.PackageManager)
	sb.WriteString(`Requirements:
1. The script must run unmodified under /bin/sh on both Alpine and Debian images.
2. Prefer downloads from official sources over distribution packages when versions matter.
3. Include proper error handling: set -e, and explicit messages on unsupported systems.
4. Verify the installation at the end (e.g. print the installed version) and exit nonzero on failure.
5. The correctness of the technology name, version, and package manager is crucial.

Here is an example script for reference:

`)
	sb.WriteString("```sh\n")
	sb.WriteString(exampleScript)
	sb.WriteString("```\n\nReply with a single fenced shell code block containing the complete script.")
	return sb.String()
}

// buildRevisePrompt asks for a corrected script given the prior attempt and
// its failure report.
func buildRevisePrompt(prior string, report controller.FailureReport) string {
	var sb strings.Builder
	sb.WriteString(`The following installation script failed when executed in a clean container. Analyze the failure, identify the root cause, and produce a corrected version that:
- addresses all identified issues,
- follows shell scripting best practices,
- still works on both Alpine and Debian environments.

Failed script:

`)
	sb.WriteString("```sh\n")
	sb.WriteString(prior)
	if !strings.HasSuffix(prior, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("```\n\nFailure report:\n\n")
	sb.WriteString(report.String())
	sb.WriteString("\n\nReply with a single fenced shell code block containing the complete corrected script.")
	return sb.String()
}
