/*
Package secrets resolves ${secret:name} references from pluggable sources.

The proxy-auth password may be given as a reference instead of a literal:

	auth:
	  type: proxy-auth
	  username: alice
	  password: ${secret:proxy-password}
	  secrets_dir: /var/run/secrets/forwarder

A Manager tries its providers in order:

  - EnvProvider reads FORWARDER_SECRET_PROXY_PASSWORD
  - FileProvider reads the file proxy-password in secrets_dir, which must
    have 0600 or 0400 permissions

# Basic Usage

	env := secrets.NewEnvProvider(secrets.DefaultEnvPrefix)
	files, err := secrets.NewFileProvider("/var/run/secrets/forwarder")
	if err != nil {
	    return err
	}

	m := secrets.NewManager(secrets.DefaultCacheTTL, env, files)
	password, err := m.Resolve(ctx, cfg.Auth.Password)

Values are cached for the manager TTL. Watch flushes the cache whenever a
mounted secret file changes, so a rotated password applies to the next
authentication attempt.
*/
package secrets
