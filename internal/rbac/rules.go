package rbac

// Default role policy. The identity provider resolves the role; the engine
// only consults this table.
var RolePermissions = map[string][]string{
	"student": {
		"test:view",
		"attempt:create",
		"attempt:save",
		"attempt:submit",
		"attempt:view-own",
		"user:change_password",
	},
	"instructor": {
		"test:create",
		"test:edit",
		"test:delete",
		"test:publish",
		"test:view",
		"test:view-keys",
		"question:edit",
		"attempt:view-all",
		"attempt:grade",
		"users:list",
		"users:bulk_upsert",
		"asset:upload",
		"user:change_password",
	},
	"admin": {
		"*", // everything
	},
}
