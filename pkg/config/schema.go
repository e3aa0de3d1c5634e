package config

// Schema is the JSON schema for validating configuration files
const Schema = `{
    "$schema": "http://json-schema.org/draft-07/schema#",
    "type": "object",
    "properties": {
        "log_level": {
            "type": "string",
            "enum": ["trace", "debug", "info", "warn", "error"]
        },
        "log_format": {
            "type": "string",
            "enum": ["json", "console"]
        },
        "volumes": {
            "type": "array",
            "items": {
                "type": "object",
                "properties": {
                    "name": {
                        "type": "string",
                        "pattern": "^[a-zA-Z0-9_-]+$"
                    },
                    "backend": {
                        "type": "string",
                        "enum": ["s3", "fs", "b2"]
                    },
                    "options": {
                        "type": "object"
                    }
                },
                "required": ["name", "backend"]
            }
        },
        "storages": {
            "type": "array",
            "items": {
                "type": "object",
                "properties": {
                    "name": {
                        "type": "string",
                        "pattern": "^[a-zA-Z0-9_-]+$"
                    },
                    "key_expr": {
                        "type": "string",
                        "minLength": 1
                    },
                    "strip_prefix": {
                        "type": "string"
                    },
                    "read_only": {
                        "type": "boolean"
                    },
                    "volume": {
                        "type": "object",
                        "properties": {
                            "id": {
                                "type": "string"
                            },
                            "bucket": {
                                "type": "string"
                            },
                            "reuse_bucket": {
                                "type": "boolean"
                            },
                            "on_closure": {
                                "type": "string",
                                "enum": ["do_nothing", "destroy_bucket"]
                            },
                            "compression": {
                                "type": "string",
                                "enum": ["none", "gzip", "zstd"]
                            },
                            "stats": {
                                "type": "boolean"
                            },
                            "private": {
                                "type": "object",
                                "properties": {
                                    "access_key": {"type": "string"},
                                    "secret_key": {"type": "string"}
                                }
                            }
                        },
                        "required": ["id"]
                    }
                },
                "required": ["name", "key_expr", "volume"]
            }
        }
    },
    "required": ["volumes", "storages"]
}`
