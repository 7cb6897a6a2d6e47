// Package tshark adapts the external tshark decoder: it turns one capture
// file into an ordered stream of QUIC packet records.
package tshark

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"QuicSieve/internal/model"
)

// fields is the column layout requested from tshark. parseLine depends on
// this exact order.
var fields = []string{
	"ip.src", "ip.dst",
	"ipv6.src", "ipv6.dst",
	"udp.srcport", "udp.dstport",
	"frame.len", "frame.time_epoch",
	"quic.long.packet_type", "quic.spin_bit",
}

// Decoder runs tshark on one capture file at a time and streams the decoded
// records. It implements model.Decoder.
type Decoder struct {
	binary    string
	extraArgs []string
}

// NewDecoder returns a decoder that runs the given tshark binary. Extra
// arguments are appended to the generated command line, after the field
// list.
func NewDecoder(binary string, extraArgs []string) *Decoder {
	if binary == "" {
		binary = "tshark"
	}
	return &Decoder{binary: binary, extraArgs: extraArgs}
}

// Decode runs tshark on path and sends one record per QUIC frame to out in
// capture order, blocking whenever out is full. The channel is closed before
// returning on every path. The returned count is the number of output lines
// that did not parse; a non-nil error means the file could not be decoded at
// all.
func (d *Decoder) Decode(path string, out chan<- *model.PacketRecord) (skipped int, err error) {
	defer close(out)

	args := []string{
		"-r", path,
		"-Y", "quic",
		"-T", "fields",
		"-E", "separator=|",
		"-E", "quote=d",
		"-E", "occurrence=f",
	}
	for _, f := range fields {
		args = append(args, "-e", f)
	}
	args = append(args, d.extraArgs...)

	cmd := exec.Command(d.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("failed to open tshark stdout: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start %s: %w", d.binary, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		rec, ok := parseLine(scanner.Text())
		if !ok {
			skipped++
			continue
		}
		out <- rec
	}
	scanErr := scanner.Err()

	if err := cmd.Wait(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return skipped, fmt.Errorf("tshark failed on %s: %w: %s", path, err, msg)
		}
		return skipped, fmt.Errorf("tshark failed on %s: %w", path, err)
	}
	if scanErr != nil {
		return skipped, fmt.Errorf("failed to read tshark output: %w", scanErr)
	}
	return skipped, nil
}

// parseLine turns one pipe-separated tshark field line into a record. Lines
// missing an address, a port, the frame length or the timestamp cannot be
// used and are rejected.
func parseLine(line string) (*model.PacketRecord, bool) {
	if line == "" {
		return nil, false
	}
	cols := strings.Split(line, "|")
	if len(cols) < 8 {
		return nil, false
	}
	for i, c := range cols {
		cols[i] = strings.Trim(strings.TrimSpace(c), `"`)
	}

	src := model.Endpoint{Addr: pick(cols[0], cols[2]), Port: cols[4]}
	dst := model.Endpoint{Addr: pick(cols[1], cols[3]), Port: cols[5]}
	if src.Addr == "" || dst.Addr == "" || src.Port == "" || dst.Port == "" {
		return nil, false
	}

	size, err := strconv.Atoi(cols[6])
	if err != nil || size < 0 {
		return nil, false
	}
	ts, err := strconv.ParseFloat(cols[7], 64)
	if err != nil {
		return nil, false
	}

	rec := &model.PacketRecord{
		Timestamp: ts,
		Size:      size,
		Src:       src,
		Dst:       dst,
	}
	typeField := ""
	if len(cols) > 8 {
		typeField = cols[8]
	}
	rec.LongHeader = typeField != ""
	rec.Type = packetType(typeField)
	if len(cols) > 9 {
		rec.Spin = spinValue(cols[9])
	}
	return rec, true
}

// pick prefers the IPv4 field and falls back to IPv6.
func pick(v4, v6 string) string {
	if v4 != "" {
		return v4
	}
	return v6
}

// packetType maps quic.long.packet_type onto the coarse taxonomy. tshark
// emits the numeric wire value on most builds and a label on some, so both
// spellings are accepted. Short-header frames carry no long type and are
// one-RTT traffic.
func packetType(field string) model.PacketType {
	switch f := strings.ToLower(field); {
	case f == "":
		return model.TypeOneRTT
	case f == "0" || strings.Contains(f, "initial"):
		return model.TypeInitial
	case f == "2" || strings.Contains(f, "handshake"):
		return model.TypeHandshake
	case f == "1" || strings.Contains(f, "0-rtt") || strings.Contains(f, "zerortt"):
		return model.TypeZeroRTT
	case f == "3" || strings.Contains(f, "retry"):
		return model.TypeRetry
	default:
		return model.TypeOther
	}
}

func spinValue(field string) model.Spin {
	switch strings.ToLower(field) {
	case "1", "true":
		return model.SpinOne
	case "0", "false":
		return model.SpinZero
	default:
		return model.SpinAbsent
	}
}
