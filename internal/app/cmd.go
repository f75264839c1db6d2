package app

// Command はgastosの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーとして起動する。
	// オフラインキャッシュワーカーのインストールと有効化を行い、
	// セッション削除とPINガード破棄、リマインダー通知のジョブも同じプロセスで動かす。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションの削除だけを定期実行する。
	// PINガードとWebSocket接続はAPIプロセスのメモリにあるため、
	// ガード破棄とリマインダー通知はこのモードでは行わない。
	CommandWorker Command = "worker"
	// CommandMigrate は埋め込みSQLマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は稼働中のAPIサーバーの/healthを確認する。
	// 設定の読み込みを行わないため、distrolessイメージのHEALTHCHECKから呼び出せる。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch Command(args[0]) {
	case CommandWorker, CommandServe, CommandMigrate, CommandHealthcheck:
		return Command(args[0])
	default:
		return CommandServe
	}
}
