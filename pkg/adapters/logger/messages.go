package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Session lifecycle
		"session started for %s (%dx%d @ %.2f fps)": "%s のセッションを開始しました (%dx%d @ %.2f fps)",
		"session disposed":                          "セッションを破棄しました",

		// Coordinator
		"seek to %s":                               "%s へシーク",
		"catchup from %s to %s":                    "%s から %s へキャッチアップ",
		"sequential fallback streak=%d":            "順次再生のフォールバックが発生 (streak=%d)",
		"decode failed at %s: %s":                  "%s のデコードに失敗しました: %s",
		"adaptive strategy: chunk=%s lookAhead=%s": "適応戦略を更新: chunk=%s lookAhead=%s",

		// Worker
		"worker generation %s started at %s": "ワーカー世代 %s を %s から開始しました",
		"worker generation %s stopped":       "ワーカー世代 %s を停止しました",
		"worker decode stream ended: %s":     "ワーカーのデコードストリームが終了しました: %s",

		// Decoder driver
		"hardware decode failed, retrying with software: %s": "ハードウェアデコードに失敗、ソフトウェアで再試行します: %s",
	})
}
