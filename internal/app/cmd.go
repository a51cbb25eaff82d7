package app

// Command はアプリケーションの起動モード。
type Command string

const (
	// CommandServe はAPIサーバーを起動する。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションを定期削除するワーカーを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は稼働中のAPIサーバーの/healthを確認する。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// String はサブコマンド名を返す。
func (c Command) String() string {
	return string(c)
}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。
// 引数なし、または未知のサブコマンドはCommandServeとして扱う。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := commands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}
