package supervisor

import (
	"os"

	"codeberg.org/mutker/tufctl/internal/config"
	"codeberg.org/mutker/tufctl/internal/device"
	"codeberg.org/mutker/tufctl/internal/logger"
)

// The gamemode daemon runs unprivileged and must be able to overwrite the
// flag file this daemon creates.
const gameModePerm = 0o777

// InitDevices performs the one-time device setup before any task launches:
// reset the backlight mode, speed and flags registers, and create the
// runtime flag files.
func InitDevices(files *device.Files, cfg *config.Config) error {
	for _, init := range []struct {
		path, value string
	}{
		{cfg.Paths.Kbbl("kbbl_mode"), "0"},
		{cfg.Paths.Kbbl("kbbl_speed"), "0"},
		{cfg.Paths.Kbbl("kbbl_flags"), "ff"},
	} {
		if err := files.Write(init.path, init.value); err != nil {
			return err
		}
	}

	if err := files.Write(cfg.Paths.GameMode, "0"); err != nil {
		return err
	}
	if err := os.Chmod(cfg.Paths.GameMode, gameModePerm); err != nil {
		return err
	}

	if err := files.Write(cfg.GPU.Report, ""); err != nil {
		return err
	}

	logger.Info().Msg("Devices initialized")

	return nil
}
