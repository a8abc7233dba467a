// Command orbitalctl is a thin CLI against orbitald's admin API,
// grounded on the teacher's cmd/ocx-cli subcommand-over-os.Args style —
// a switch on the first argument, hand-rolled --flag parsing for the
// rest, a single doRequest helper shared by every subcommand.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/orbital/kernel/internal/hal"
	"github.com/orbital/kernel/internal/kerntypes"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	addr := os.Getenv("ORBITAL_ADMIN_ADDR")
	if addr == "" {
		addr = "http://localhost:8090"
	}

	switch os.Args[1] {
	case "ps":
		cmdProcesses(addr)
	case "commits":
		cmdCommits(addr)
	case "syslog":
		cmdSyslog(addr)
	case "cap":
		cmdCapInfo(addr)
	case "integrity":
		cmdIntegrity(addr)
	case "dry-run":
		cmdDryRun()
	case "version":
		fmt.Printf("orbitalctl v%s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`orbitalctl v` + version + `

Usage: orbitalctl <command> [flags]

Commands:
  ps                      List live processes
  commits --from <seq>    Tail the CommitLog
  syslog --since <id>     Tail the SysLog
  cap --pid <p> --slot <s>  Inspect one capability slot
  integrity               Check the CommitLog's hash chain
  dry-run --pid <p>       Exercise the HAL boundary against hal.Null, no daemon required
  version                 Print the CLI version

Environment:
  ORBITAL_ADMIN_ADDR   Base URL of orbitald's admin API (default http://localhost:8090)`)
}

func cmdProcesses(addr string) {
	resp, err := doRequest("GET", addr+"/v1/processes", nil)
	fatalOn(err)
	var procs []kerntypes.ProcessInfo
	fatalOn(json.Unmarshal(resp, &procs))
	fmt.Printf("%-6s %-20s %s\n", "PID", "NAME", "STATE")
	for _, p := range procs {
		fmt.Printf("%-6d %-20s %s\n", p.Pid, p.Name, stateName(p.State))
	}
}

func stateName(s kerntypes.ProcessState) string {
	switch s {
	case kerntypes.Running:
		return "RUNNING"
	case kerntypes.Blocked:
		return "BLOCKED"
	case kerntypes.Zombie:
		return "ZOMBIE"
	default:
		return "UNKNOWN"
	}
}

func cmdCommits(addr string) {
	from := flagValue("--from", "0")
	resp, err := doRequest("GET", fmt.Sprintf("%s/v1/commits?from=%s", addr, from), nil)
	fatalOn(err)
	var commits []kerntypes.Commit
	fatalOn(json.Unmarshal(resp, &commits))
	for _, c := range commits {
		fmt.Printf("seq=%d tag=%d id=%x\n", c.Seq, c.CommitType.Tag(), c.Id)
	}
}

func cmdSyslog(addr string) {
	since := flagValue("--since", "0")
	resp, err := doRequest("GET", fmt.Sprintf("%s/v1/syslog?since=%s", addr, since), nil)
	fatalOn(err)
	var events []kerntypes.SysEvent
	fatalOn(json.Unmarshal(resp, &events))
	for _, e := range events {
		fmt.Printf("id=%d sender=%d kind=%d syscall=%#x\n", e.Id, e.Sender, e.Kind, e.SyscallNum)
	}
}

func cmdCapInfo(addr string) {
	pid := flagValue("--pid", "")
	slot := flagValue("--slot", "")
	if pid == "" || slot == "" {
		fmt.Fprintln(os.Stderr, "usage: orbitalctl cap --pid <p> --slot <s>")
		os.Exit(1)
	}
	resp, err := doRequest("GET", fmt.Sprintf("%s/v1/cap/%s/%s", addr, pid, slot), nil)
	fatalOn(err)
	fmt.Println(string(resp))
}

func cmdIntegrity(addr string) {
	resp, err := doRequest("GET", addr+"/v1/integrity", nil)
	fatalOn(err)
	var result map[string]bool
	fatalOn(json.Unmarshal(resp, &result))
	if result["ok"] {
		fmt.Println("commit log integrity: ok")
	} else {
		fmt.Println("commit log integrity: FAILED")
		os.Exit(1)
	}
}

// cmdDryRun exercises the HAL boundary against hal.Null without a
// running daemon — every call is expected to fail with HalError, which
// is the point: it confirms a deployment's tooling handles the HAL
// contract's error shape correctly before pointing it at a real backend.
func cmdDryRun() {
	pidStr := flagValue("--pid", "1")
	pidNum, err := strconv.ParseUint(pidStr, 10, 64)
	fatalOn(err)
	pid := kerntypes.ProcessId(pidNum)

	h := hal.Null{}
	if err := h.SpawnProcessWithPID(pid, "dry-run", nil); err != nil {
		fmt.Printf("spawn_process_with_pid: %v (expected — hal.Null rejects everything)\n", err)
	}
	if _, err := h.ReadMailbox(pid); err != nil {
		fmt.Printf("read_mailbox: %v (expected)\n", err)
	}
	fmt.Println("dry run complete: hal.Null surfaced HalError for every call, as designed")
}

func flagValue(name, def string) string {
	for i, a := range os.Args {
		if a == name && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
	}
	return def
}

func doRequest(method, url string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func fatalOn(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
