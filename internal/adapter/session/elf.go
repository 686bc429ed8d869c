package session

import (
	"debug/elf"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/V4T54L/ctf-relay/internal/domain"
	"github.com/V4T54L/ctf-relay/internal/pkg/config"
)

// ControlBlockSymbol is the symbol name of the SEGGER RTT control block.
const ControlBlockSymbol = "_SEGGER_RTT"

// SymbolTable resolves symbol names to addresses.
type SymbolTable map[string]uint64

// LoadSymbols reads the symbol table of an ELF file.
func LoadSymbols(path string) (SymbolTable, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open ELF file '%s': %w", domain.ErrConfig, path, err)
	}
	defer f.Close()

	syms, err := f.Symbols()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read symbols from ELF file '%s': %w", domain.ErrConfig, path, err)
	}
	table := make(SymbolTable, len(syms))
	for _, s := range syms {
		if s.Name == "" {
			continue
		}
		if _, ok := table[s.Name]; !ok {
			table[s.Name] = s.Value
		}
	}
	return table, nil
}

// ParseAddress parses a decimal or 0x-prefixed hexadecimal address.
func ParseAddress(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return v, nil
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid address '%s'", domain.ErrConfig, s)
	}
	return v, nil
}

// resolveLocation turns an address or symbol name into an address. Symbol
// addresses have the thumb bit cleared when thumb is set.
func resolveLocation(loc string, syms SymbolTable, thumb bool) (uint64, error) {
	if addr, err := ParseAddress(loc); err == nil {
		return addr, nil
	}
	if syms == nil {
		return 0, fmt.Errorf("%w: '%s' is not an address and no ELF file was given to resolve it", domain.ErrConfig, loc)
	}
	addr, ok := syms[loc]
	if !ok {
		return 0, fmt.Errorf("%w: could not locate symbol '%s' in the ELF file", domain.ErrConfig, loc)
	}
	if thumb {
		addr &^= 1
	}
	return addr, nil
}

// NewConfig builds the session request from the proxy collector settings,
// resolving symbols against the ELF file when one is configured.
func NewConfig(cfg *config.ProxyCollectorConfig, logger *slog.Logger) (*Config, error) {
	var syms SymbolTable
	if cfg.ElfFile != "" {
		var err error
		if syms, err = LoadSymbols(cfg.ElfFile); err != nil {
			return nil, err
		}
	}

	sc := &Config{
		Version: ProtocolV1,
		Probe: ProbeConfig{
			Protocol:         cfg.Protocol,
			SpeedKHz:         cfg.SpeedKHz,
			Target:           Target{Chip: cfg.Chip},
			AttachUnderReset: cfg.AttachUnderReset,
			ForceExclusive:   cfg.ForceExclusive,
		},
		Target: TargetConfig{
			AutoRecover:                    cfg.AutoRecover,
			Core:                           cfg.Core,
			Reset:                          cfg.Reset,
			Bootloader:                     cfg.Bootloader,
			BootloaderCompanionApplication: cfg.BootloaderCompanionApplication,
		},
		RTT: RTTConfig{
			UpChannel:             cfg.UpChannel,
			DownChannel:           2,
			DisableControlPlane:   true,
			RTTReadBufferSize:     cfg.RTTReadBufferSize,
			RTTPollIntervalMs:     uint64(cfg.RTTPollInterval.Milliseconds()),
			RTTIdlePollIntervalMs: uint64(cfg.RTTIdlePollInterval.Milliseconds()),
		},
	}
	if cfg.ProbeSelector != "" {
		sel := cfg.ProbeSelector
		sc.Probe.ProbeSelector = &sel
	}
	if cfg.AttachTimeout > 0 {
		sc.RTT.AttachTimeoutMs = millis(cfg.AttachTimeout.Milliseconds())
	}
	if cfg.NoDataStopTimeout > 0 {
		sc.RTT.NoDataStopTimeoutMs = millis(cfg.NoDataStopTimeout.Milliseconds())
	}

	switch {
	case cfg.ControlBlockAddress != "":
		addr, err := ParseAddress(cfg.ControlBlockAddress)
		if err != nil {
			return nil, err
		}
		sc.RTT.ControlBlockAddress = &addr
	case syms != nil:
		if addr, ok := syms[ControlBlockSymbol]; ok {
			logger.Debug("found RTT control block symbol", "symbol", ControlBlockSymbol, "address", fmt.Sprintf("0x%X", addr))
			sc.RTT.ControlBlockAddress = &addr
		}
	}

	if cfg.Breakpoint != "" {
		addr, err := resolveLocation(cfg.Breakpoint, syms, cfg.Thumb)
		if err != nil {
			return nil, err
		}
		sc.RTT.SetupOnBreakpointAddress = &addr
	}
	if cfg.StopOnBreakpoint != "" {
		addr, err := resolveLocation(cfg.StopOnBreakpoint, syms, cfg.Thumb)
		if err != nil {
			return nil, err
		}
		sc.RTT.StopOnBreakpointAddress = &addr
	}

	return sc, nil
}

func millis(ms int64) *uint64 {
	v := uint64(ms)
	return &v
}
