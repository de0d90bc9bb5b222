package catalog

// DefaultEntries is the seed catalog used on first run and whenever the
// persisted document is missing, stale, or unreadable.
func DefaultEntries() []AppEntry {
	return []AppEntry{
		{
			Name:        "Clash Verge",
			Description: "A Clash Meta GUI based on Tauri",
			Platforms: map[string]PlatformSource{
				"windows": {
					Repo:         "clash-verge-rev/clash-verge-rev",
					AssetPattern: `.*x64-setup\.exe$`,
					FallbackURL:  "https://github.com/clash-verge-rev/clash-verge-rev/releases/download/v2.0.3/Clash.Verge_2.0.3_x64-setup.exe",
				},
				"macos": {
					Repo:         "clash-verge-rev/clash-verge-rev",
					AssetPattern: `.*aarch64\.dmg$`,
					FallbackURL:  "https://github.com/clash-verge-rev/clash-verge-rev/releases/download/v2.0.3/Clash.Verge_2.0.3_aarch64.dmg",
				},
				"linux": {
					Repo:         "clash-verge-rev/clash-verge-rev",
					AssetPattern: `.*amd64\.deb$`,
					FallbackURL:  "https://github.com/clash-verge-rev/clash-verge-rev/releases/download/v2.0.3/Clash.Verge_2.0.3_amd64.deb",
				},
			},
		},
		{
			Name:        "v2rayN",
			Description: "A GUI client for Windows supporting Xray and sing-box cores",
			Platforms: map[string]PlatformSource{
				"windows": {
					Repo:         "2dust/v2rayN",
					AssetPattern: `^v2rayN-windows-64-SelfContained\.zip$`,
					FallbackURL:  "https://github.com/2dust/v2rayN/releases/download/7.3.2/v2rayN-windows-64-SelfContained.zip",
				},
			},
		},
		{
			Name:        "v2rayNG",
			Description: "A V2Ray client for Android",
			Platforms: map[string]PlatformSource{
				"android": {
					Repo:         "2dust/v2rayNG",
					AssetPattern: `.*arm64-v8a\.apk$`,
					FallbackURL:  "https://github.com/2dust/v2rayNG/releases/download/1.9.16/v2rayNG_1.9.16_arm64-v8a.apk",
				},
			},
		},
	}
}
